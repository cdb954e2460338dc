package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func sseServer(t *testing.T, wantAuth string, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != wantAuth {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
			fl.Flush()
		}
	}))
}

func drain(chunks <-chan string, errs <-chan error) (string, error) {
	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	if err, ok := <-errs; ok {
		return b.String(), err
	}
	return b.String(), nil
}

func deltaFrame(content string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`, content)
}

func TestStreamChat(t *testing.T) {
	srv := sseServer(t, "Bearer sk-test", []string{
		deltaFrame("Hel"),
		"",
		deltaFrame("lo"),
		"data: [DONE]",
		deltaFrame("ignored after done"),
	})
	defer srv.Close()

	c := NewClient(5 * time.Second)
	got, err := drain(c.StreamChat(context.Background(), Endpoint{
		BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test",
	}, []Message{{Role: "user", Content: "hi"}}))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got != "Hello" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestStreamChatSkipsMalformedFrames(t *testing.T) {
	srv := sseServer(t, "Bearer sk-test", []string{
		deltaFrame("a"),
		"data: {not json at all",
		": comment line",
		`data: {"choices":[]}`,
		deltaFrame("b"),
		"data: [DONE]",
	})
	defer srv.Close()

	c := NewClient(5 * time.Second)
	got, err := drain(c.StreamChat(context.Background(), Endpoint{
		BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test",
	}, nil))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got != "ab" {
		t.Fatalf("malformed frames should be skipped, got %q", got)
	}
}

func TestStreamChatEndsOnConnectionClose(t *testing.T) {
	// no [DONE] sentinel; the body just ends
	srv := sseServer(t, "Bearer sk-test", []string{deltaFrame("tail")})
	defer srv.Close()

	c := NewClient(5 * time.Second)
	got, err := drain(c.StreamChat(context.Background(), Endpoint{
		BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test",
	}, nil))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got != "tail" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestStreamChatUpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	got, err := drain(c.StreamChat(context.Background(), Endpoint{
		BaseURL: srv.URL, APIKey: "sk-bad", Model: "gpt-test",
	}, nil))
	if err == nil {
		t.Fatalf("expected error")
	}
	if got != "" {
		t.Fatalf("expected no content, got %q", got)
	}
}

func TestStreamChatInStreamError(t *testing.T) {
	srv := sseServer(t, "Bearer sk-test", []string{
		deltaFrame("partial"),
		`data: {"error":{"message":"rate limited"}}`,
	})
	defer srv.Close()

	c := NewClient(5 * time.Second)
	got, err := drain(c.StreamChat(context.Background(), Endpoint{
		BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test",
	}, nil))
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected rate limited error, got %v", err)
	}
	if got != "partial" {
		t.Fatalf("expected fragments before the error, got %q", got)
	}
}

func TestStreamChatRequiresCredentials(t *testing.T) {
	c := NewClient(time.Second)
	_, err := drain(c.StreamChat(context.Background(), Endpoint{BaseURL: "http://x", Model: "m"}, nil))
	if err == nil {
		t.Fatalf("expected missing api key error")
	}
	_, err = drain(c.StreamChat(context.Background(), Endpoint{BaseURL: "http://x", APIKey: "k"}, nil))
	if err == nil {
		t.Fatalf("expected missing model error")
	}
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	got, err := c.Chat(context.Background(), Endpoint{
		BaseURL: srv.URL + "/", APIKey: "sk-test", Model: "gpt-test",
	}, []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != "hi there" {
		t.Fatalf("unexpected reply %q", got)
	}
}
