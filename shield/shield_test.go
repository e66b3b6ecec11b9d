package shield

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/changeview/kit"
)

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); !strings.Contains(got, "script-src 'self'") {
		t.Errorf("CSP = %q", got)
	}
}

func TestSecurityHeaders_EmptySkipped(t *testing.T) {
	h := SecurityHeaders(HeaderConfig{XContentTypeOptions: "nosniff"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if _, ok := rec.Header()["Content-Security-Policy"]; ok {
		t.Error("empty CSP was sent")
	}
}

func TestHeadToGet(t *testing.T) {
	var method string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { method = r.Method }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodHead, "/page/p1/", nil))
	if method != http.MethodGet {
		t.Fatalf("method = %s, want GET", method)
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"far too long"}`)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	var ctxID, transport string
	var logger *slog.Logger
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = kit.GetRequestID(r.Context())
		transport = kit.GetTransport(r.Context())
		logger = Logger(r.Context())
	}), Stack(slog.New(slog.NewTextHandler(io.Discard, nil)), 1024)...)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.HasPrefix(ctxID, "req_") || rec.Header().Get("X-Request-Id") != ctxID {
		t.Fatalf("request id %q, header %q", ctxID, rec.Header().Get("X-Request-Id"))
	}
	if transport != kit.TransportHTTP || logger == nil || logger == slog.Default() {
		t.Errorf("transport = %q, logger = %v", transport, logger)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "upstream-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if ctxID != "upstream-42" {
		t.Errorf("client id not reused: %q", ctxID)
	}
}
