// Package server exposes a Session over HTTP: POST /define makes a template
// current and POST /ground instantiates it over the populations in the
// request.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/sfu-cl-lab/our-papers/internal/metrics"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn"
)

const (
	allowMethods = "GET, POST, PUT, OPTIONS, DELETE"
	allowHeaders = "Origin, Accept, Content-Type, X-Requested-With, X-CRSF-Token, Access-Control-Allow-Origin"

	maxBodyBytes    = 8 << 20
	shutdownTimeout = 5 * time.Second
)

// Server routes API requests to a session.
type Server struct {
	session *rbn.Session
	metrics *metrics.Metrics
	logger  *zap.Logger
	ids     *rbn.IDSource
	engine  *gin.Engine
}

// Options configures a Server. Metrics and Logger may be nil.
type Options struct {
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	IDs     *rbn.IDSource
}

// New builds the routes around session.
func New(session *rbn.Session, opts Options) *Server {
	s := &Server{
		session: session,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		ids:     opts.IDs,
		engine:  gin.New(),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.ids == nil {
		s.ids = rbn.NewIDSource()
	}

	s.engine.Use(gin.Recovery(), s.requestID(), s.observe(), cors())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.engine
	r.GET("/health", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	r.OPTIONS("/define", preflight)
	r.OPTIONS("/ground", preflight)
	r.POST("/define", requireJSON(), s.define)
	r.POST("/ground", requireJSON(), s.ground)
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler { return s.engine }

// Serve serves h on ln until ctx is done, then shuts down gracefully. A
// positive maxConns caps the number of simultaneously open connections.
func Serve(ctx context.Context, ln net.Listener, h http.Handler, maxConns int) error {
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
