package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crudkit/internal/config"
	"github.com/simp-lee/crudkit/internal/pkg"
)

// stubServer stands in for *http.Server. ListenAndServe fails with listenErr
// or blocks until Shutdown.
type stubServer struct {
	listenErr error
	started   chan struct{}
	stopped   chan struct{}
	shutdowns atomic.Int32
}

func newStubServer(listenErr error) *stubServer {
	return &stubServer{listenErr: listenErr, started: make(chan struct{}), stopped: make(chan struct{})}
}

func (s *stubServer) ListenAndServe() error {
	close(s.started)
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.stopped
	return http.ErrServerClosed
}

func (s *stubServer) Shutdown(context.Context) error {
	if s.shutdowns.Add(1) == 1 {
		close(s.stopped)
	}
	return nil
}

// stubRuntime installs srv and a signal context that cancel ends. The
// returned pointer receives the timeout Run passed to newHTTPServer.
func stubRuntime(t *testing.T, srv httpServer) (cancel context.CancelFunc, timeout *time.Duration) {
	t.Helper()
	origServer, origNotify := newHTTPServer, notifyContext
	t.Cleanup(func() { newHTTPServer, notifyContext = origServer, origNotify })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	timeout = new(time.Duration)
	newHTTPServer = func(_ string, _ http.Handler, d time.Duration) httpServer {
		*timeout = d
		return srv
	}
	notifyContext = func(context.Context, ...os.Signal) (context.Context, context.CancelFunc) {
		return ctx, func() {}
	}
	return cancel, timeout
}

func testConfig(t *testing.T, autoMigrate *bool) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, Mode: gin.TestMode},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			SQLite:      config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "crudkit.db")},
			AutoMigrate: autoMigrate,
		},
		Log:        config.LogConfig{Level: "error", Format: "text"},
		Pagination: config.PaginationConfig{DefaultLimit: 10, MaxLimit: 100},
	}
}

// mustNew builds an App that the test must Run or close itself.
func mustNew(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a := mustNew(t, cfg)
	t.Cleanup(func() {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = a.log.Close()
	})
	return a
}

func TestServerTimeout(t *testing.T) {
	tests := map[string]time.Duration{
		"":      0,
		" 45s ": 45 * time.Second,
		"1m30s": 90 * time.Second,
		"later": 0,
		"-2s":   0,
	}
	for in, want := range tests {
		if got := serverTimeout(in); got != want {
			t.Errorf("serverTimeout(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHTTPServer(t *testing.T) {
	tests := []struct {
		timeout     time.Duration
		read, write time.Duration
	}{
		{0, defaultReadTimeout, defaultWriteTimeout},
		{12 * time.Second, 12 * time.Second, 12 * time.Second},
	}
	for _, tt := range tests {
		srv, ok := newHTTPServer("127.0.0.1:0", http.NotFoundHandler(), tt.timeout).(*http.Server)
		if !ok {
			t.Fatal("newHTTPServer should build an *http.Server")
		}
		if srv.ReadTimeout != tt.read || srv.WriteTimeout != tt.write {
			t.Errorf("timeout %v: read/write = %v/%v, want %v/%v", tt.timeout, srv.ReadTimeout, srv.WriteTimeout, tt.read, tt.write)
		}
		if srv.ReadHeaderTimeout != readHeaderTimeout || srv.IdleTimeout != idleTimeout {
			t.Errorf("header/idle = %v/%v", srv.ReadHeaderTimeout, srv.IdleTimeout)
		}
	}
}

func TestNew_Rejects(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"unknown mode", func(c *config.Config) { c.Server.Mode = "staging" }, "invalid server.mode"},
		{"unknown driver", func(c *config.Config) { c.Database.Driver = "oracle" }, "invalid database.driver"},
		{"default above max", func(c *config.Config) { c.Pagination.MaxLimit = 5 }, "must not exceed"},
		{"sqlite dir is a file", func(c *config.Config) { c.Database.SQLite.Path = filepath.Join(blocker, "crudkit.db") }, "setup database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, nil)
			tt.mutate(cfg)
			a, err := New(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.wantErr)
			}
			if a != nil {
				t.Error("failed New should not return an app")
			}
		})
	}

	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
}

func TestNew_AutoMigrate(t *testing.T) {
	on, off := true, false
	tests := []struct {
		name    string
		migrate *bool
		want    bool
	}{
		{"on", &on, true},
		{"off", &off, false},
		{"unset outside debug", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t, testConfig(t, tt.migrate))
			if got := a.db.Migrator().HasTable("users"); got != tt.want {
				t.Errorf("users table = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_ServesUserAPI(t *testing.T) {
	on := true
	cfg := testConfig(t, &on)
	cfg.Pagination = config.PaginationConfig{DefaultLimit: 2, MaxLimit: 2}
	h := newTestApp(t, cfg).Handler()

	send := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	steps := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodPost, "/api/v1/users", `{"name":"Alice","email":"alice@example.com","unique_name":"alice"}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/users", `{"name":"Bob","email":"bob@example.com"}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/users", `{"name":"Carol","email":"carol@example.com"}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/users", `{"name":"Alice","email":"alice@example.com"}`, http.StatusConflict},
		{http.MethodPost, "/api/v1/users", `{"name":"A"}`, http.StatusBadRequest},
		{http.MethodPut, "/api/v1/users/by-name/alice", `{"name":"Alicia"}`, http.StatusOK},
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodPatch, "/health", "", http.StatusMethodNotAllowed},
	}
	for _, s := range steps {
		if w := send(s.method, s.target, s.body); w.Code != s.want {
			t.Fatalf("%s %s = %d, want %d: %s", s.method, s.target, w.Code, s.want, w.Body.String())
		}
	}

	w := send(http.MethodGet, "/api/v1/users?limit=50&sort=name&order=asc", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("responses should carry X-Request-ID")
	}
	var list struct {
		Data struct {
			Limit      int   `json:"limit"`
			TotalItems int64 `json:"total_items"`
			TotalPages int64 `json:"total_pages"`
			Items      []struct {
				Name string `json:"name"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if d := list.Data; d.Limit != 2 || d.TotalItems != 3 || d.TotalPages != 2 || len(d.Items) != 2 || d.Items[0].Name != "Alicia" {
		t.Errorf("list = %+v, want limit clamped to 2 and Alicia first", d)
	}

	if w := send(http.MethodDelete, "/api/v1/users?ids=2,3", ""); w.Code != http.StatusOK {
		t.Fatalf("bulk delete = %d: %s", w.Code, w.Body.String())
	}
	if w := send(http.MethodGet, "/api/v1/users/3", ""); w.Code != http.StatusNotFound {
		t.Errorf("deleted user = %d, want 404", w.Code)
	}

	var got pkg.Response
	if err := json.Unmarshal(send(http.MethodGet, "/api/v1/users/1", "").Body.Bytes(), &got); err != nil {
		t.Fatalf("decode get: %v", err)
	}
	if data, _ := got.Data.(map[string]any); data["name"] != "Alicia" || data["unique_name"] != "alice" {
		t.Errorf("user 1 = %v", got.Data)
	}
}

func TestRun_ListenFailure(t *testing.T) {
	listenErr := errors.New("address already in use")
	stubRuntime(t, newStubServer(listenErr))

	a := mustNew(t, testConfig(t, nil))
	err := a.Run()
	if !errors.Is(err, listenErr) || !strings.Contains(err.Error(), "server error") {
		t.Fatalf("Run = %v, want wrapped listen error", err)
	}
	if sqlDB, _ := a.db.DB(); sqlDB.Ping() == nil {
		t.Error("database should be closed after a listen failure")
	}
}

func TestRun_SignalShutsDown(t *testing.T) {
	srv := newStubServer(nil)
	cancel, timeout := stubRuntime(t, srv)

	cfg := testConfig(t, nil)
	cfg.Server.Timeout = "30s"
	a := mustNew(t, cfg)

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	select {
	case <-srv.started:
	case <-time.After(2 * time.Second):
		t.Fatal("server never started")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the signal")
	}
	if srv.shutdowns.Load() != 1 {
		t.Errorf("Shutdown called %d times, want 1", srv.shutdowns.Load())
	}
	if *timeout != 30*time.Second {
		t.Errorf("server timeout = %v, want 30s", *timeout)
	}
	if sqlDB, _ := a.db.DB(); sqlDB.Ping() == nil {
		t.Error("database should be closed after shutdown")
	}
}

func TestRun_Uninitialized(t *testing.T) {
	for _, a := range []*App{nil, {}, {cfg: &config.Config{}}} {
		if err := a.Run(); err == nil {
			t.Errorf("Run on %+v should fail", a)
		}
	}
}
