// Package server exposes the agent's local status API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"holoport-stats/internal/agent"
	"holoport-stats/internal/archive"
	"holoport-stats/internal/config"
)

// Trigger starts a run in the background. It reports false when one is
// already in flight.
type Trigger interface {
	Trigger() bool
}

type History interface {
	Recent(ctx context.Context, limit int) ([]archive.Entry, error)
}

type Server struct {
	cfg     config.ServerConfig
	logger  *log.Logger
	status  *agent.Status
	trigger Trigger
	history History

	procRoot string
}

// New builds the status server. history may be nil when no archive is
// configured.
func New(cfg config.ServerConfig, status *agent.Status, trigger Trigger, history History, logger *log.Logger) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		status:  status,
		trigger: trigger,
		history: history,
	}
}

func (s *Server) Handler() http.Handler {
	return s.routes()
}

// Run serves until ctx is cancelled, then drains open requests.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on http://%s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
