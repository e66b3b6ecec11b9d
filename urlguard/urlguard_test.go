package urlguard

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		url  string
		want error
	}{
		{"https://93.184.215.14/pricing", nil},
		{"ftp://example.com/file", ErrScheme},
		{"javascript:alert(1)", ErrScheme},
		{"http://127.0.0.1:8080/admin", ErrPrivateAddress},
		{"http://localhost/", ErrPrivateAddress},
		{"http://10.1.2.3/", ErrPrivateAddress},
		{"http://172.20.0.1/", ErrPrivateAddress},
		{"http://192.168.0.10/", ErrPrivateAddress},
		{"http://169.254.169.254/latest/meta-data", ErrPrivateAddress},
		{"http://[::1]/", ErrPrivateAddress},
		{"http://0.0.0.0/", ErrPrivateAddress},
	}
	for _, tt := range tests {
		err := Validate(tt.url)
		if !errors.Is(err, tt.want) {
			t.Errorf("Validate(%q) = %v, want %v", tt.url, err, tt.want)
		}
	}
}

func TestValidate_NoHost(t *testing.T) {
	if err := Validate("https:///path"); err == nil {
		t.Fatal("expected error for URL without host")
	}
}

func TestSyntax_AllowsLoopback(t *testing.T) {
	if err := Syntax("http://127.0.0.1:34567/page"); err != nil {
		t.Fatalf("Syntax: %v", err)
	}
	if err := Syntax("file:///etc/passwd"); !errors.Is(err, ErrScheme) {
		t.Fatalf("Syntax(file) = %v, want ErrScheme", err)
	}
}

func TestReadAll(t *testing.T) {
	data, err := ReadAll(strings.NewReader("hello"), 5)
	if err != nil || string(data) != "hello" {
		t.Fatalf("ReadAll = %q, %v", data, err)
	}
	if _, err := ReadAll(strings.NewReader("hello!"), 5); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("ReadAll over limit err = %v, want ErrTooLarge", err)
	}
}
