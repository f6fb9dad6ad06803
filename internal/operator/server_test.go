package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func startTestServer(t *testing.T, handler Handler) (*httptest.Server, *Server) {
	t.Helper()

	s := NewServer("unused", handler, logrus.NewEntry(logrus.New()))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.dispatch(ctx)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/v1/messages", s.handleMessage)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, s
}

func postMessage(t *testing.T, ts *httptest.Server, msg Message) (*http.Response, map[string]string) {
	t.Helper()

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(ts.URL+"/api/v1/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var parsed map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, parsed
}

func TestMessageRoundTrip(t *testing.T) {
	var gotFrom, gotText string
	var gotFiles []File
	ts, _ := startTestServer(t, func(ctx context.Context, from, text string, files []File) (string, error) {
		gotFrom, gotText, gotFiles = from, text, files
		return "Saved. I'll think with this later.", nil
	})

	resp, parsed := postMessage(t, ts, Message{
		From: "op-1",
		Text: "spent the night chasing a cron drift bug",
		Attachments: []Attachment{
			{Name: "whiteboard.png", Data: "aGVsbG8="},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if parsed["reply"] != "Saved. I'll think with this later." {
		t.Fatalf("reply = %q", parsed["reply"])
	}
	if gotFrom != "op-1" || gotText == "" {
		t.Fatalf("handler saw from=%q text=%q", gotFrom, gotText)
	}
	if len(gotFiles) != 1 || string(gotFiles[0].Data) != "hello" {
		t.Fatalf("files = %+v", gotFiles)
	}
}

func TestRejectsInvalidBase64(t *testing.T) {
	ts, _ := startTestServer(t, func(ctx context.Context, from, text string, files []File) (string, error) {
		t.Fatal("handler must not run for a malformed request")
		return "", nil
	})

	resp, _ := postMessage(t, ts, Message{
		From:        "op-1",
		Text:        "here",
		Attachments: []Attachment{{Name: "x.png", Data: "not base64!!"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRejectsMissingSender(t *testing.T) {
	ts, _ := startTestServer(t, func(ctx context.Context, from, text string, files []File) (string, error) {
		t.Fatal("handler must not run without a sender")
		return "", nil
	})

	resp, _ := postMessage(t, ts, Message{Text: "anonymous"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandlerErrorSurfacesAsServerError(t *testing.T) {
	ts, _ := startTestServer(t, func(ctx context.Context, from, text string, files []File) (string, error) {
		return "", errors.New("database locked")
	})

	resp, parsed := postMessage(t, ts, Message{From: "op-1", Text: "approve"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if parsed["error"] == "" {
		t.Fatal("error detail missing from response")
	}
}

func TestFullQueueRejectsInsteadOfReordering(t *testing.T) {
	gate := make(chan struct{})
	ts, srv := startTestServer(t, func(ctx context.Context, from, text string, files []File) (string, error) {
		<-gate
		return "ok", nil
	})
	defer close(gate)

	// One message occupies the dispatcher, 16 more fill the queue.
	for i := 0; i < 17; i++ {
		go func() {
			body, _ := json.Marshal(Message{From: "op-1", Text: "queued"})
			resp, err := http.Post(ts.URL+"/api/v1/messages", "application/json", bytes.NewReader(body))
			if err == nil {
				resp.Body.Close()
			}
		}()
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(srv.queue) < cap(srv.queue) {
		if time.Now().After(deadline) {
			t.Fatalf("queue never filled: %d/%d", len(srv.queue), cap(srv.queue))
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, parsed := postMessage(t, ts, Message{From: "op-1", Text: "one too many"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if parsed["error"] == "" {
		t.Fatal("rejection should explain itself")
	}
}
