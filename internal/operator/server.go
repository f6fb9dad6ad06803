// Package operator is the inbound half of the operator channel: a small
// HTTP surface a chat bridge posts messages into. Replies and prompts go
// out through the notify package.
package operator

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Attachment is one operator-supplied file, base64 in transit.
type Attachment struct {
	Name string `json:"name" binding:"required"`
	Data string `json:"data" binding:"required"`
}

// Message is an inbound operator message.
type Message struct {
	From        string       `json:"from" binding:"required"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

// File is a decoded attachment handed to the handler.
type File struct {
	Name string
	Data []byte
}

// Handler processes one inbound message and returns the reply text.
// Messages are dispatched strictly in arrival order.
type Handler func(ctx context.Context, from, text string, files []File) (string, error)

// Server serializes inbound messages through a single dispatcher goroutine
// so pipeline steps for the operator are never interleaved.
type Server struct {
	addr    string
	handler Handler
	log     *logrus.Entry
	queue   chan job
	http    *http.Server
}

type job struct {
	ctx   context.Context
	from  string
	text  string
	files []File
	done  chan result
}

type result struct {
	reply string
	err   error
}

// NewServer creates the operator HTTP server.
func NewServer(addr string, handler Handler, log *logrus.Entry) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		log:     log,
		queue:   make(chan job, 16),
	}
}

// Run starts the dispatcher and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.dispatch(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/api/v1/messages", s.handleMessage)

	s.http = &http.Server{Addr: s.addr, Handler: router}

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// dispatch processes queued messages one at a time, in arrival order.
func (s *Server) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			reply, err := s.handler(j.ctx, j.from, j.text, j.files)
			j.done <- result{reply: reply, err: err}
		}
	}
}

func (s *Server) handleMessage(c *gin.Context) {
	var msg Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	files := make([]File, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		data, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attachment " + a.Name + " is not valid base64"})
			return
		}
		files = append(files, File{Name: a.Name, Data: data})
	}

	j := job{
		ctx:   c.Request.Context(),
		from:  msg.From,
		text:  msg.Text,
		files: files,
		done:  make(chan result, 1),
	}

	select {
	case s.queue <- j:
	default:
		// The queue is full; reject rather than reorder.
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "operator queue full, retry shortly"})
		return
	}

	select {
	case res := <-j.done:
		if res.err != nil {
			s.log.WithError(res.err).Warn("message handling failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": res.err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reply": res.reply})
	case <-c.Request.Context().Done():
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "client went away"})
	}
}
