package security

import (
	"strings"
	"testing"
)

func TestURLGuardValidate(t *testing.T) {
	guard := NewURLGuard()

	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{"public https", "https://example.com/article", ""},
		{"public http", "http://example.com", ""},
		{"file scheme", "file:///etc/passwd", "unsupported scheme"},
		{"gopher scheme", "gopher://example.com", "unsupported scheme"},
		{"localhost", "http://localhost:8080/", "blocked host"},
		{"localhost mixed case", "http://LoCalHost/", "blocked host"},
		{"loopback ip", "http://127.0.0.1/", "loopback"},
		{"loopback ipv6", "http://[::1]/", "loopback"},
		{"mapped loopback", "http://[::ffff:127.0.0.1]/", "loopback"},
		{"rfc1918 ten", "http://10.0.0.5/", "private"},
		{"rfc1918 one-seventy-two", "http://172.16.0.1/", "private"},
		{"rfc1918 one-ninety-two", "http://192.168.1.1/", "private"},
		{"cloud metadata", "http://169.254.169.254/latest/meta-data/", "link-local"},
		{"metadata hostname", "http://metadata.google.internal/", "blocked host"},
		{"unspecified", "http://0.0.0.0/", "unspecified"},
		{"empty host", "http:///path", "empty hostname"},
		{"public hostname passes static check", "http://internal.example.com/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.Validate(tt.url)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate(%q) = %v, want nil", tt.url, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate(%q) = nil, want error containing %q", tt.url, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate(%q) = %v, want error containing %q", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestURLGuardClientBlocksLoopbackDial(t *testing.T) {
	guard := NewURLGuard()
	client := guard.Client(0)

	_, err := client.Get("http://127.0.0.1:1/")
	if err == nil {
		t.Fatal("expected loopback dial to be blocked")
	}
	if !strings.Contains(err.Error(), "fetch blocked") {
		t.Errorf("error = %v, want fetch blocked", err)
	}
}
