// Package debug exposes an optional operator HTTP endpoint: pprof profiles,
// a health probe, a pool stats snapshot and the recent task history.
package debug

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"thermopool/internal/history"
	"thermopool/internal/pool"
	logx "thermopool/pkg/logx"
)

// Config controls the debug server.
//
// Security: bind to loopback (the default). Binding elsewhere requires a
// Token or an explicit AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StatsFunc supplies the current pool snapshot.
type StatsFunc func() pool.Stats

type Server struct {
	cfg   Config
	log   logx.Logger
	stats StatsFunc
	store history.Store // may be nil

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

func New(cfg Config, stats StatsFunc, store history.Store, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, stats: stats, store: store, log: log}
}

// Start binds and serves in the background. Disabled configs are a no-op.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	addr := s.cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:6060"
	}
	if !isLoopback(addr) && s.cfg.Token == "" && !s.cfg.AllowInsecure {
		return errors.New("debug: refusing non-loopback bind without token (set allow_insecure to override)")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.guard(s.routes()),
		ReadTimeout:  orDur(s.cfg.ReadTimeout, 5*time.Second),
		WriteTimeout: orDur(s.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  orDur(s.cfg.IdleTimeout, time.Minute),
	}

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("debug server stopped", logx.Err(err))
		}
	}()
	s.log.Info("debug server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
}

// Addr returns the bound address, or "" when not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", hpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.stats())
	})

	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil {
			http.Error(w, "history disabled", http.StatusNotFound)
			return
		}
		n := 50
		if q := r.URL.Query().Get("n"); q != "" {
			if v, err := strconv.Atoi(q); err == nil && v > 0 {
				n = v
			}
		}
		recs, err := s.store.Recent(r.Context(), n)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, recs)
	})

	return mux
}

// guard enforces bearer/token auth when a token is configured.
func (s *Server) guard(next http.Handler) http.Handler {
	if s.cfg.Token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("token")
		if tok == "" {
			tok = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(tok), []byte(s.cfg.Token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func orDur(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
