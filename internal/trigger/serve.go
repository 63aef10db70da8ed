package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"datadeploy/internal/logger"

	"golang.org/x/sync/errgroup"
)

// Server hosts the schedule, the webhook endpoint and the dispatcher together.
type Server struct {
	Dispatcher *Dispatcher

	// Schedule is optional; nil disables scheduled runs.
	Schedule *Schedule

	// Addr is the listen address; empty disables the webhook unless Listener is set.
	Addr     string
	Listener net.Listener

	// WebhookPath and Webhook mount the push endpoint.
	WebhookPath string
	Webhook     http.Handler

	ShutdownTimeout time.Duration
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	if s.Webhook != nil {
		path := s.WebhookPath
		if path == "" {
			path = "/webhook"
		}
		mux.Handle(path, s.Webhook)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "pending": s.Dispatcher.Pending()})
	})
	return mux
}

// Serve blocks until ctx is cancelled or a component fails.
func (s *Server) Serve(ctx context.Context) error {
	if s.Dispatcher == nil {
		return errors.New("serve: dispatcher is nil")
	}

	ln := s.Listener
	if ln == nil && s.Addr != "" {
		var err error
		ln, err = net.Listen("tcp", s.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", s.Addr, err)
		}
	}
	if ln == nil && s.Schedule == nil {
		return errors.New("serve: neither a schedule nor a listen address is configured")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.Dispatcher.Run(ctx)
	})

	if s.Schedule != nil {
		g.Go(func() error {
			return s.Schedule.Run(ctx, func(ev Event) {
				if err := s.Dispatcher.Submit(ev); err != nil {
					logger.WarnKV(ctx, "scheduled run not queued", "error", err)
				}
			})
		})
	}

	if ln != nil {
		srv := &http.Server{Handler: s.handler(), ReadHeaderTimeout: 10 * time.Second}
		logger.InfoKV(ctx, "webhook listening", "addr", ln.Addr().String(), "path", s.WebhookPath)
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("webhook server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			timeout := s.ShutdownTimeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
