// Package api provides the HTTP surface of LangRelay: the webhook
// verification handshake, the delivery batch ingestor, and the health
// endpoint.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/langrelay/langrelay/internal/models"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// DefaultReadHeaderTimeout bounds header reads on inbound connections.
const DefaultReadHeaderTimeout = 10 * time.Second

// Pipeline consumes one decoded webhook delivery batch. Implemented by the
// router pipeline.
type Pipeline interface {
	HandleDelivery(ctx context.Context, payload models.WebhookPayload)
}

// HealthCheck reports the availability of one collaborator. A nil error
// means healthy.
type HealthCheck func() error

// Server is the LangRelay HTTP server.
type Server struct {
	addr        string
	verifyToken string
	pipeline    Pipeline
	checks      map[string]HealthCheck
	httpServer  *http.Server
}

// Opts holds configuration for a Server.
type Opts struct {
	// Addr is the listen address; empty means DefaultAddr.
	Addr string
	// VerifyToken is the shared secret for the webhook verification handshake.
	VerifyToken string
}

// Option configures a Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// NewServer creates a Server around the given delivery pipeline.
func NewServer(pipeline Pipeline, opts ...Option) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("server requires a delivery pipeline")
	}
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	if o.VerifyToken == "" {
		return nil, fmt.Errorf("server requires a webhook verify token")
	}
	return &Server{
		addr:        o.Addr,
		verifyToken: o.VerifyToken,
		pipeline:    pipeline,
		checks:      make(map[string]HealthCheck),
	}, nil
}

// RegisterHealthCheck adds a named collaborator check to the health endpoint.
func (s *Server) RegisterHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// Handler builds the route table. Exposed for httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) checkNames() []string {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
