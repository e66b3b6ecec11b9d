package changeurl

import (
	"testing"

	"github.com/hazyhaar/changeview/page"
)

func TestEncode(t *testing.T) {
	a := &page.Version{UUID: "v1"}
	b := &page.Version{UUID: "v2"}

	tests := []struct {
		name     string
		from, to *page.Version
		want     string
	}{
		{"both", a, b, "v1..v2"},
		{"same", b, b, "v2..v2"},
		{"no from", nil, b, ""},
		{"no to", a, nil, ""},
		{"neither", nil, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.from, tt.to); got != tt.want {
				t.Errorf("Encode: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		token string
		want  Range
	}{
		{"", Range{}},
		{"v1..v2", Range{FromID: "v1", ToID: "v2"}},
		{"..v2", Range{ToID: "v2"}},
		{"v2", Range{ToID: "v2"}},
		{"v1..", Range{FromID: "v1"}},
		{"v1.v2", Range{ToID: "v1.v2"}},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			if got := Decode(tt.token); got != tt.want {
				t.Errorf("Decode(%q): got %+v, want %+v", tt.token, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	ids := []string{
		"v1",
		"01890a5d-ac96-774b-bcce-b302099a8057",
		"0189f7e4-1e2b-7c3d-8e4f-5a6b7c8d9e0f",
	}
	for _, from := range ids {
		for _, to := range ids {
			a := &page.Version{UUID: from}
			b := &page.Version{UUID: to}
			got := Decode(Encode(a, b))
			if got.FromID != from || got.ToID != to {
				t.Errorf("round trip %s..%s: got %+v", from, to, got)
			}
		}
	}
}

func TestPagePath(t *testing.T) {
	if got := PagePath("p1", "v1..v2"); got != "/page/p1/v1..v2" {
		t.Errorf("PagePath: got %q", got)
	}
	if got := PagePath("p1", ""); got != "/page/p1/" {
		t.Errorf("PagePath empty token: got %q", got)
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path      string
		id, token string
		ok        bool
	}{
		{"/page/p1/v1..v2", "p1", "v1..v2", true},
		{"/page/p1/", "p1", "", true},
		{"/page/p1", "p1", "", true},
		{"/", "", "", false},
		{"/page/", "", "", false},
		{"/page/p1/a/b", "", "", false},
		{"/other/p1", "", "", false},
	}
	for _, tt := range tests {
		id, token, ok := ParsePath(tt.path)
		if id != tt.id || token != tt.token || ok != tt.ok {
			t.Errorf("ParsePath(%q): got (%q, %q, %v), want (%q, %q, %v)",
				tt.path, id, token, ok, tt.id, tt.token, tt.ok)
		}
	}

	// Paths built by PagePath always parse back.
	id, token, ok := ParsePath(PagePath("p9", "a..b"))
	if !ok || id != "p9" || token != "a..b" {
		t.Errorf("PagePath round trip: got (%q, %q, %v)", id, token, ok)
	}
}
