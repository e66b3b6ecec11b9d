package capture

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/changeview/urlguard"
)

func TestHTTP_Capture(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(pricingPage))
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{Validator: urlguard.Syntax, UserAgent: "changeview-test"})
	snap, err := h.Capture(context.Background(), srv.URL+"/pricing")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if snap.Title != "Pricing plans" || snap.StatusCode != 200 || snap.Source != SourceHTTP {
		t.Errorf("snap = %+v", snap)
	}
	if ua != "changeview-test" {
		t.Errorf("User-Agent = %q", ua)
	}
}

func TestHTTP_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	h := NewHTTP(HTTPConfig{Validator: urlguard.Syntax})
	if _, err := h.Capture(context.Background(), srv.URL); err == nil || !strings.Contains(err.Error(), "http 404") {
		t.Fatalf("err = %v, want http 404", err)
	}
}

func TestHTTP_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{Validator: urlguard.Syntax, MaxBytes: 1024})
	if _, err := h.Capture(context.Background(), srv.URL); !errors.Is(err, urlguard.ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestHTTP_DefaultValidatorBlocksLoopback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{})
	if _, err := h.Capture(context.Background(), srv.URL); !errors.Is(err, urlguard.ErrPrivateAddress) {
		t.Fatalf("err = %v, want ErrPrivateAddress", err)
	}
	if called {
		t.Error("blocked URL was fetched")
	}
}

func TestHTTP_RedirectValidated(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<p>internal</p>"))
	}))
	defer target.Close()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/admin", http.StatusFound)
	}))
	defer origin.Close()

	deny := func(u string) error {
		if strings.HasSuffix(u, "/admin") {
			return urlguard.ErrPrivateAddress
		}
		return nil
	}
	h := NewHTTP(HTTPConfig{Validator: deny})
	if _, err := h.Capture(context.Background(), origin.URL); !errors.Is(err, urlguard.ErrPrivateAddress) {
		t.Fatalf("err = %v, want redirect blocked", err)
	}
}

func TestBrowser_ValidatesBeforeLaunch(t *testing.T) {
	b := NewBrowser(BrowserConfig{})
	defer b.Close()
	if _, err := b.Capture(context.Background(), "file:///etc/passwd"); !errors.Is(err, urlguard.ErrScheme) {
		t.Fatalf("err = %v, want ErrScheme", err)
	}
	if b.browser != nil {
		t.Error("browser launched for a rejected URL")
	}
}

func TestBrowser_ClosedRefuses(t *testing.T) {
	b := NewBrowser(BrowserConfig{Validator: urlguard.Syntax})
	b.Close()
	if _, err := b.Capture(context.Background(), "https://example.com"); err == nil {
		t.Fatal("expected error after Close")
	}
}
