package delegation

import (
	"fmt"
	"strings"
)

// Status renders the registry: online specialists first, then offline ones
// with when they were last seen. Output depends only on registry contents.
func (r *Resolver) Status() string {
	list := r.registry.List()
	if len(list) == 0 {
		return "No specialists registered."
	}
	var online, offline []Specialist
	for _, s := range list {
		if s.IsOnline {
			online = append(online, s)
		} else {
			offline = append(offline, s)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Online (%d):\n", len(online))
	for _, s := range online {
		fmt.Fprintf(&b, "• %s: %s\n", s.Name, strings.Join(s.Specialties, ", "))
	}
	fmt.Fprintf(&b, "Offline (%d):\n", len(offline))
	for _, s := range offline {
		seen := "never"
		if !s.LastSeen.IsZero() {
			seen = s.LastSeen.UTC().Format("2006-01-02 15:04 UTC")
		}
		fmt.Fprintf(&b, "• %s (last seen %s)\n", s.Name, seen)
	}
	return strings.TrimRight(b.String(), "\n")
}
