// Package diag exposes the local diagnostics endpoint backing the developer
// overlay. It binds to loopback only and is never started outside dev mode.
package diag

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cannonclash/client/internal/app"
)

// StatusFunc yields the current controller snapshot.
type StatusFunc func() app.Status

// Server serves the controller state as JSON for the diagnostics overlay
// and for poking at a running client from the shell.
type Server struct {
	status StatusFunc
	log    *zerolog.Logger
	srv    *http.Server
}

func New(addr string, status StatusFunc, logger *zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{status: status, log: logger}
	r.GET("/health", s.handleHealth)
	r.GET("/status", s.handleStatus)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	if s.log != nil {
		s.log.Info().Str("addr", s.srv.Addr).Msg("diagnostics endpoint listening")
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status())
}
