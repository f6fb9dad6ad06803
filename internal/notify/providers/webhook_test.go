package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookSenderPostsJSON(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	s := NewWebhookSender(ts.URL)
	if err := s.Send(context.Background(), "Today's draft is ready."); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["text"] != "Today's draft is ready." {
		t.Fatalf("payload = %v", got)
	}
}

func TestWebhookSenderSurfacesHTTPErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	if err := NewWebhookSender(ts.URL).Send(context.Background(), "hi"); err == nil {
		t.Fatal("non-2xx should error")
	}
}

func TestWebhookSenderConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	if err := NewWebhookSender(ts.URL).Send(context.Background(), "hi"); err == nil {
		t.Fatal("refused connection should error")
	}
}
