package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fd1az/blockviz/internal/logger"
)

// Server runs the HTTP API.
type Server struct {
	port   int
	engine *gin.Engine
	log    logger.LoggerInterface
	server *http.Server
}

// NewServer builds the router for h.
func NewServer(port int, h *Handlers, log logger.LoggerInterface) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), AccessLog(log))
	h.Register(engine)

	return &Server{port: port, engine: engine, log: log}
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.engine, "blockviz.api")
}

// Start serves in the background.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error(context.Background(), "api server stopped", "error", err)
		}
	}()

	s.log.Info(context.Background(), "api server listening", "port", s.port)
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
