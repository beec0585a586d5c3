package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Result is the tagged outcome of a typed oracle call.
type Result[T any] struct {
	Value T
	OK    bool
	Err   error
}

// Or returns the decoded value, or fallback when the call failed.
func (r Result[T]) Or(fallback T) T {
	if r.OK {
		return r.Value
	}
	return fallback
}

// Decode extracts the first JSON object from raw and unmarshals it into T.
// validate may reject a well-formed but semantically invalid value.
func Decode[T any](raw string, validate func(*T) error) Result[T] {
	var r Result[T]
	obj := ExtractJSON(raw)
	if obj == "" {
		r.Err = fmt.Errorf("%w: no JSON object in reply", ErrMalformed)
		return r
	}
	if err := json.Unmarshal([]byte(obj), &r.Value); err != nil {
		r.Err = fmt.Errorf("%w: %w", ErrMalformed, err)
		return r
	}
	if validate != nil {
		if err := validate(&r.Value); err != nil {
			r.Err = fmt.Errorf("%w: %w", ErrMalformed, err)
			return r
		}
	}
	r.OK = true
	return r
}

// AskJSON asks the oracle and decodes the reply in one step. It never
// returns an error; failures are carried in the Result.
func AskJSON[T any](ctx context.Context, o Oracle, p Prompt, validate func(*T) error) Result[T] {
	p.JSON = true
	raw, err := o.Ask(ctx, p)
	if err != nil {
		return Result[T]{Err: err}
	}
	return Decode(raw, validate)
}

// ExtractJSON returns the first balanced JSON object in s, tolerating
// markdown fences and surrounding prose. Braces inside strings are ignored.
func ExtractJSON(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
