package debug

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"thermopool/internal/pool"
	logx "thermopool/pkg/logx"
)

func startTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Enabled = true
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	s := New(cfg, func() pool.Stats { return pool.Stats{TotalWorkers: 3} }, nil, logx.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func TestHealthAndStats(t *testing.T) {
	s := startTestServer(t, Config{})

	resp, _ := get(t, "http://"+s.Addr()+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health = %d", resp.StatusCode)
	}

	resp, body := get(t, "http://"+s.Addr()+"/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/stats = %d", resp.StatusCode)
	}
	var st pool.Stats
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("/stats body: %v", err)
	}
	if st.TotalWorkers != 3 {
		t.Fatalf("stats workers = %d, want 3", st.TotalWorkers)
	}
}

func TestHistoryDisabled(t *testing.T) {
	s := startTestServer(t, Config{})
	resp, _ := get(t, "http://"+s.Addr()+"/history")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("/history without store = %d, want 404", resp.StatusCode)
	}
}

func TestTokenGuard(t *testing.T) {
	s := startTestServer(t, Config{Token: "sekrit"})

	resp, _ := get(t, "http://"+s.Addr()+"/health")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated = %d, want 401", resp.StatusCode)
	}

	resp, _ = get(t, "http://"+s.Addr()+"/health?token=sekrit")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token query = %d, want 200", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, "http://"+s.Addr()+"/health", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with bearer: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("bearer header = %d, want 200", resp2.StatusCode)
	}
}

func TestNonLoopbackRequiresToken(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"},
		func() pool.Stats { return pool.Stats{} }, nil, logx.Nop())
	if err := s.Start(); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
		t.Fatal("expected refusal for non-loopback bind without token")
	}
}

func TestDisabledIsNoop(t *testing.T) {
	s := New(Config{}, func() pool.Stats { return pool.Stats{} }, nil, logx.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("disabled Start: %v", err)
	}
	if s.Addr() != "" {
		t.Fatalf("disabled server bound to %q", s.Addr())
	}
}
