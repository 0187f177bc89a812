package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/storage-gateway/internal/logger"
	"github.com/marmos91/storage-gateway/pkg/config"
)

// Server runs the gateway's plaintext listener and, when configured, a
// second TLS listener on SSLPort sharing the same handler. Both listeners
// are started and stopped together.
type Server struct {
	plain *http.Server
	tls   *http.Server

	certFile, keyFile string

	shutdownOnce sync.Once
}

// NewServer builds a Server from opts, serving handler on both the
// plaintext and (if SSLPort != 0) TLS listeners. NumOfAcceptors and
// MaxKeepalive are not applied: each listener accepts on one goroutine, and
// the number of requests on a keep-alive connection is not bounded.
func NewServer(opts config.HTTPOptions, handler http.Handler) *Server {
	plain := &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	s := &Server{plain: plain}

	if opts.SSLPort != 0 {
		s.tls = &http.Server{
			Addr:         fmt.Sprintf(":%d", opts.SSLPort),
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  90 * time.Second,
			TLSConfig:    &tls.Config{MinVersion: tls.VersionTLS12},
		}
		s.certFile = opts.SSLCertfile
		s.keyFile = opts.SSLKeyfile
	}

	return s
}

// Start serves both listeners and blocks until ctx is cancelled or either
// listener fails, at which point it initiates graceful shutdown of both.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 2)

	go func() {
		logger.Info("gateway: plaintext listener starting", "addr", s.plain.Addr)
		if err := s.plain.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("plaintext listener: %w", err)
		}
	}()

	if s.tls != nil {
		go func() {
			logger.Info("gateway: TLS listener starting", "addr", s.tls.Addr)
			if err := s.tls.ListenAndServeTLS(s.certFile, s.keyFile); err != nil && err != http.ErrServerClosed {
				errChan <- fmt.Errorf("TLS listener: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("gateway: shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(shutdownCtx)
		return err
	}
}

// Stop gracefully shuts down both listeners. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if shutErr := s.plain.Shutdown(ctx); shutErr != nil {
			err = fmt.Errorf("plaintext shutdown: %w", shutErr)
			logger.Error("gateway: plaintext shutdown error", "error", shutErr)
		}
		if s.tls != nil {
			if shutErr := s.tls.Shutdown(ctx); shutErr != nil {
				if err == nil {
					err = fmt.Errorf("TLS shutdown: %w", shutErr)
				}
				logger.Error("gateway: TLS shutdown error", "error", shutErr)
			}
		}
		if err == nil {
			logger.Info("gateway: stopped gracefully")
		}
	})
	return err
}
