package exporter

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	healthPath        = "/healthz"
	readHeaderTimeout = 5 * time.Second
)

var landingPage = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head><title>BSEC Exporter</title></head>
<body>
<h1>BSEC Exporter</h1>
<p><a href="{{.Path}}">Metrics</a></p>
<p><a href="` + healthPath + `">Health</a></p>
<p>Version {{.Version}}</p>
</body>
</html>
`))

// NewRouter builds the HTTP routes: the metrics path, a health check that
// turns green after the first publish, and a landing page.
func NewRouter(cfg Config, gatherer prometheus.Gatherer, source Source, version string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger.Component("http")))

	r.Method(http.MethodGet, cfg.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))

	r.Get(healthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		snap := source.Read()
		if snap.Seq == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "waiting for first measurement cycle")
			return
		}
		fmt.Fprintf(w, "ok, %d cycles published, last at %s\n",
			snap.Seq, snap.Published.UTC().Format(time.RFC3339))
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		landingPage.Execute(w, struct {
			Path    string
			Version string
		}{cfg.Path, version})
	})

	return r
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Str("request_id", middleware.GetReqID(r.Context())).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}

// Server runs one http.Server per listen address over a shared handler.
type Server struct {
	cfg       Config
	handler   http.Handler
	listeners []net.Listener
	servers   []*http.Server
	log       logger.Logger
}

func NewServer(cfg Config, handler http.Handler) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     logger.Component("exporter"),
	}
}

// Listen binds every configured address. Nothing is bound if any fails.
func (s *Server) Listen() error {
	errFactory := errors.New()

	for _, addr := range s.cfg.ListenAddrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.closeListeners()
			return errFactory.WithData(ErrListen, struct {
				Address string
				Error   string
			}{
				Address: addr,
				Error:   err.Error(),
			})
		}
		s.listeners = append(s.listeners, ln)
	}

	return nil
}

// Addrs returns the bound addresses, useful when listening on port 0.
func (s *Server) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, ln := range s.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

func (s *Server) closeListeners() {
	for _, ln := range s.listeners {
		ln.Close()
	}
	s.listeners = nil
}

// Serve blocks until ctx is cancelled or a listener fails, then shuts all
// servers down within the grace period.
func (s *Server) Serve(ctx context.Context) error {
	errFactory := errors.New()

	if len(s.listeners) == 0 {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	errCh := make(chan error, len(s.listeners))
	var wg sync.WaitGroup

	for _, ln := range s.listeners {
		srv := &http.Server{
			Handler:           s.handler,
			ReadHeaderTimeout: readHeaderTimeout,
		}
		s.servers = append(s.servers, srv)

		wg.Add(1)
		go func(srv *http.Server, ln net.Listener) {
			defer wg.Done()
			s.log.Info().Str("address", ln.Addr().String()).Str("path", s.cfg.Path).Msg("Serving metrics")
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- errFactory.Wrap(ErrServe, err)
			}
		}(srv, ln)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GracePeriod)
	defer cancel()

	for _, srv := range s.servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("HTTP server did not shut down cleanly")
			srv.Close()
			if serveErr == nil {
				serveErr = errFactory.Wrap(ErrShutdown, err)
			}
		}
	}
	wg.Wait()

	s.log.Info().Msg("HTTP servers stopped")

	return serveErr
}
