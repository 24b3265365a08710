package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/genricoloni/raspdac/internal/domain"
	"go.uber.org/zap"
)

type fakeLifecycle struct {
	called []string
	err    error
}

func (f *fakeLifecycle) OnStart(ctx context.Context) error { return nil }
func (f *fakeLifecycle) OnStop(ctx context.Context) error  { return nil }
func (f *fakeLifecycle) OnRestart(ctx context.Context) error {
	f.called = append(f.called, "restart")
	return f.err
}
func (f *fakeLifecycle) OnHostShutdown(ctx context.Context) error {
	f.called = append(f.called, "shutdown")
	return f.err
}
func (f *fakeLifecycle) OnHostReboot(ctx context.Context) error {
	f.called = append(f.called, "reboot")
	return f.err
}

type fakeSnapshots struct {
	snap domain.DisplaySnapshot
	err  error
}

func (f fakeSnapshots) Snapshot(ctx context.Context) (domain.DisplaySnapshot, error) {
	return f.snap, f.err
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	return serveType(h, method, path, "")
}

// serveType sends the request with the given Content-Type
func serveType(h http.Handler, method, path, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	h := NewRouter(zap.NewNop(), &fakeLifecycle{}, fakeSnapshots{}, nil)

	rec := serve(h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %s", ct)
	}
}

func TestRouter_Display(t *testing.T) {
	snap := domain.DisplaySnapshot{
		SessionID: "abc",
		Ready:     true,
		Lines:     [2]string{"A-B", "   0.00:4.05"},
		Current:   &domain.PlaybackState{Status: domain.StatusPlaying, Artist: "A", Title: "B"},
	}
	h := NewRouter(zap.NewNop(), &fakeLifecycle{}, fakeSnapshots{snap: snap}, nil)

	rec := serve(h, http.MethodGet, "/api/display")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got domain.DisplaySnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.SessionID != "abc" || got.Lines[0] != "A-B" || got.Current == nil || got.Current.Title != "B" {
		t.Errorf("unexpected snapshot %+v", got)
	}
}

func TestRouter_DisplayUnavailable(t *testing.T) {
	h := NewRouter(zap.NewNop(), &fakeLifecycle{}, fakeSnapshots{err: errors.New("engine stopped")}, nil)

	if rec := serve(h, http.MethodGet, "/api/display"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestRouter_Lifecycle(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		method      string
		contentType string
		status      int
		called      string
	}{
		{"restart", "/api/lifecycle/restart", http.MethodPost, "application/json", http.StatusOK, "restart"},
		{"shutdown", "/api/lifecycle/shutdown", http.MethodPost, "application/json", http.StatusOK, "shutdown"},
		{"reboot with charset", "/api/lifecycle/reboot", http.MethodPost, "application/json; charset=utf-8", http.StatusOK, "reboot"},
		{"unknown hook", "/api/lifecycle/explode", http.MethodPost, "application/json", http.StatusNotFound, ""},
		{"simple form post", "/api/lifecycle/shutdown", http.MethodPost, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType, ""},
		{"plain text post", "/api/lifecycle/reboot", http.MethodPost, "text/plain", http.StatusUnsupportedMediaType, ""},
		{"no content type", "/api/lifecycle/shutdown", http.MethodPost, "", http.StatusUnsupportedMediaType, ""},
		{"get", "/api/lifecycle/restart", http.MethodGet, "", http.StatusMethodNotAllowed, ""},
		{"unknown path", "/api/nothing", http.MethodGet, "", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := &fakeLifecycle{}
			h := NewRouter(zap.NewNop(), lc, fakeSnapshots{}, nil)

			rec := serveType(h, tt.method, tt.path, tt.contentType)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if tt.called == "" && len(lc.called) != 0 {
				t.Errorf("unexpected hook calls %v", lc.called)
			}
			if tt.called != "" && (len(lc.called) != 1 || lc.called[0] != tt.called) {
				t.Errorf("expected %s, got %v", tt.called, lc.called)
			}
		})
	}
}

func TestRouter_LifecycleError(t *testing.T) {
	h := NewRouter(zap.NewNop(), &fakeLifecycle{err: errors.New("no commander")}, fakeSnapshots{}, nil)

	if rec := serveType(h, http.MethodPost, "/api/lifecycle/shutdown", "application/json"); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestRouter_CORS(t *testing.T) {
	h := NewRouter(zap.NewNop(), &fakeLifecycle{}, fakeSnapshots{}, []string{"http://volumio.local"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://volumio.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://volumio.local" {
		t.Errorf("expected allowed origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for foreign origin, got %q", got)
	}

	// Listed origins may preflight a JSON hook call
	req = httptest.NewRequest(http.MethodOptions, "/api/lifecycle/restart", nil)
	req.Header.Set("Origin", "http://volumio.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://volumio.local" {
		t.Errorf("expected the preflight to be granted, got %q", got)
	}
}

func TestRouter_SameOriginByDefault(t *testing.T) {
	lc := &fakeLifecycle{}
	h := NewRouter(zap.NewNop(), lc, fakeSnapshots{}, nil)

	// A browser preflight for the shutdown hook is not granted
	req := httptest.NewRequest(http.MethodOptions, "/api/lifecycle/shutdown", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS grant, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/display", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header on reads, got %q", got)
	}
	if len(lc.called) != 0 {
		t.Errorf("unexpected hook calls %v", lc.called)
	}
}

func TestServer_StartStop(t *testing.T) {
	h := NewRouter(zap.NewNop(), &fakeLifecycle{}, fakeSnapshots{}, nil)
	s := NewServer(zap.NewNop(), "127.0.0.1:0", h)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}

func TestServer_Disabled(t *testing.T) {
	s := NewServer(zap.NewNop(), "", http.NotFoundHandler())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}
