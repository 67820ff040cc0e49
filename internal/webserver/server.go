// Package webserver serves the paste-and-evaluate form and the JSON API.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spboyer/dea/internal/orchestration"
)

const (
	// DefaultMaxBodySize caps request bodies when Config.MaxBodySize is zero.
	DefaultMaxBodySize = 10 << 20
	// DefaultPort is used when Config.Port is zero.
	DefaultPort = 3000

	shutdownTimeout = 5 * time.Second
	browserDelay    = 500 * time.Millisecond
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	MaxBodySize int64
	NoBrowser   bool
	Logger      *slog.Logger

	// Out receives the URL banner. Defaults to os.Stdout.
	Out io.Writer

	// RunnerOptions are applied to every evaluation before request options.
	RunnerOptions []orchestration.RunnerOption
}

// Server is the DEA HTTP front end. It binds to loopback only.
type Server struct {
	cfg     Config
	srv     *http.Server
	logger  *slog.Logger
	openURL func(string) error
}

// New validates cfg, fills in defaults and registers the routes. Nothing is
// bound until ListenAndServe or Serve is called.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port out of range: %d", cfg.Port)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	mux := http.NewServeMux()
	if err := registerRoutes(mux, &handlers{cfg: cfg, logger: cfg.Logger}); err != nil {
		return nil, err
	}

	return &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		srv: &http.Server{
			Addr:              net.JoinHostPort("127.0.0.1", fmt.Sprint(cfg.Port)),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelWarn),
		},
		openURL: openBrowser,
	}, nil
}

// ListenAndServe binds the configured loopback port and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains
// in-flight requests for up to five seconds. It takes ownership of ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	url := "http://" + ln.Addr().String()
	s.logger.Info("HTTP server starting", "address", ln.Addr().String())
	fmt.Fprintf(s.cfg.Out, "dea: %s\n", url) //nolint:errcheck

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		return nil
	})

	if !s.cfg.NoBrowser {
		go func() {
			select {
			case <-time.After(browserDelay):
			case <-gctx.Done():
				return
			}
			if err := s.openURL(url); err != nil {
				s.logger.Debug("failed to open browser", "error", err)
			}
		}()
	}

	return g.Wait()
}

// Handler returns the route multiplexer, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
