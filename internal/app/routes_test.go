package app

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/simp-lee/crudkit/internal/pkg"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func memoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// hangingDB is a postgres-dialect handle whose Ping waits for its context.
func hangingDB(t *testing.T) *gorm.DB {
	t.Helper()
	registerHangingDriver.Do(func() { sql.Register("crudkit_hanging", hangingDriver{}) })
	sqlDB, err := sql.Open("crudkit_hanging", "")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	return db
}

var registerHangingDriver sync.Once

type hangingDriver struct{}

func (hangingDriver) Open(string) (driver.Conn, error) { return hangingConn{}, nil }

type hangingConn struct{}

func (hangingConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (hangingConn) Close() error                        { return nil }
func (hangingConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

func (hangingConn) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// getHealth calls the health handler. A positive deadline bounds the request
// context.
func getHealth(t *testing.T, db *gorm.DB, deadline time.Duration) (int, healthReport) {
	t.Helper()
	r := gin.New()
	r.GET("/health", healthHandler(db))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	if deadline > 0 {
		ctx, cancel := context.WithTimeout(req.Context(), deadline)
		defer cancel()
		req = req.WithContext(ctx)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var report healthReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return w.Code, report
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		db         func(t *testing.T) *gorm.DB
		wantStatus int
		want       healthReport
	}{
		{"database up", memoryDB, http.StatusOK, healthReport{"ok", map[string]string{"database": "ok"}}},
		{"database closed", func(t *testing.T) *gorm.DB {
			db := memoryDB(t)
			sqlDB, _ := db.DB()
			_ = sqlDB.Close()
			return db
		}, http.StatusServiceUnavailable, healthReport{"degraded", map[string]string{"database": "error"}}},
		{"no database", func(*testing.T) *gorm.DB { return nil }, http.StatusServiceUnavailable, healthReport{"degraded", map[string]string{"database": "error"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, report := getHealth(t, tt.db(t), 0)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if report.Status != tt.want.Status || report.Components["database"] != tt.want.Components["database"] {
				t.Errorf("report = %+v, want %+v", report, tt.want)
			}
		})
	}
}

func TestHealthHandler_RequestDeadline(t *testing.T) {
	db := hangingDB(t)
	start := time.Now()
	status, _ := getHealth(t, db, 20*time.Millisecond)
	if status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
	if elapsed := time.Since(start); elapsed >= healthPingTimeout {
		t.Errorf("ping took %v, should stop at the request deadline", elapsed)
	}
}

// widgetModule mounts one route and records that it was asked to.
type widgetModule struct{ mounted bool }

func (m *widgetModule) RegisterRoutes(api *gin.RouterGroup) {
	m.mounted = true
	api.GET("/widgets", func(c *gin.Context) { pkg.Success(c, []string{"gear"}) })
}

func TestRegisterRoutes_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		router  *gin.Engine
		deps    *RouteDeps
		wantErr string
	}{
		{"nil router", nil, &RouteDeps{}, "router is nil"},
		{"nil deps", gin.New(), nil, "route dependencies are nil"},
		{"no modules", gin.New(), &RouteDeps{Modules: []Module{}}, "at least one module"},
		{"nil module", gin.New(), &RouteDeps{Modules: []Module{&widgetModule{}, nil}}, "module at index 1 is nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := RegisterRoutes(tt.router, tt.deps); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterRoutes_NilModuleMountsNothing(t *testing.T) {
	m := &widgetModule{}
	_ = RegisterRoutes(gin.New(), &RouteDeps{Modules: []Module{m, nil}})
	if m.mounted {
		t.Error("modules should not be mounted when the list is invalid")
	}
}

func TestRegisterRoutes_Serves(t *testing.T) {
	m := &widgetModule{}
	r := gin.New()
	if err := RegisterRoutes(r, &RouteDeps{Modules: []Module{m}, DB: memoryDB(t)}); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	if !m.mounted {
		t.Fatal("module routes were not mounted")
	}

	tests := []struct {
		method, target string
		wantStatus     int
		wantMsg        string
	}{
		{http.MethodGet, "/api/v1/widgets", http.StatusOK, "success"},
		{http.MethodGet, "/widgets", http.StatusNotFound, "not found"},
		{http.MethodGet, "/api/v2/widgets", http.StatusNotFound, "not found"},
		{http.MethodDelete, "/api/v1/widgets", http.StatusMethodNotAllowed, "method not allowed"},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed, "method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))

			var resp pkg.Response
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if w.Code != tt.wantStatus || resp.Code != tt.wantStatus || resp.Message != tt.wantMsg {
				t.Errorf("got %d %+v, want %d %q", w.Code, resp, tt.wantStatus, tt.wantMsg)
			}
		})
	}
}
