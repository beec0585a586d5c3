//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("AOS_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

type messageRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Content  string `json:"content"`
}

type messageResponse struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// sendMessage POSTs a chat message through the REST gateway and returns the reply.
func sendMessage(t *testing.T, userID, content string) messageResponse {
	t.Helper()

	body, err := json.Marshal(messageRequest{UserID: userID, UserName: "smokebot", Content: content})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Post(baseURL+"/api/gateway/rest/message", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/gateway/rest/message: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var msg messageResponse
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, string(raw))
	}
	return msg
}

func TestSlashHelp(t *testing.T) {
	reply := sendMessage(t, "smoke-test", "/help")
	if !strings.Contains(reply.Content, "/help") {
		t.Errorf("expected response to contain '/help', got: %s", reply.Content)
	}
}

func TestSlashStatus(t *testing.T) {
	reply := sendMessage(t, "smoke-test", "/status")
	if !strings.Contains(reply.Content, "rest") {
		t.Errorf("expected rest adapter in status, got: %s", reply.Content)
	}
}

func TestGreeting(t *testing.T) {
	reply := sendMessage(t, "smoke-greet", "hello there")
	if len(reply.Content) == 0 {
		t.Error("expected a reply to a greeting")
	}
	t.Logf("reply: %.200s", reply.Content)
}

func TestWorkItemListing(t *testing.T) {
	reply := sendMessage(t, "smoke-build", "build a contact form with name, email and message fields for the marketing site")
	t.Logf("reply: %.300s", reply.Content)

	resp, err := http.Get(baseURL + "/api/workitems?user=smoke-build")
	if err != nil {
		t.Fatalf("GET /api/workitems: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var items []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode work items: %v", err)
	}
	if strings.HasPrefix(reply.Content, "Created work item") && len(items) == 0 {
		t.Error("reply announced a work item but none is listed")
	}
}
