package safeurl

import (
	"errors"
	"net"
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		url          string
		blockPrivate bool
		want         error
		wantErr      bool
	}{
		{"https://example.com/feed", true, nil, false},
		{"http://example.com/", false, nil, false},
		{"ftp://example.com/data", false, ErrUnsafeScheme, true},
		{"javascript:alert(1)", false, ErrUnsafeScheme, true},
		{"file:///etc/passwd", false, ErrUnsafeScheme, true},
		{"http:///nohost", false, nil, true},
		{"http://127.0.0.1:8080/", false, nil, false},
		{"http://127.0.0.1:8080/", true, ErrPrivate, true},
		{"http://10.0.0.1/internal", true, ErrPrivate, true},
		{"http://[::1]/api", true, ErrPrivate, true},
		{"http://localhost/", true, ErrPrivate, true},
		{"http://app.localhost/", true, ErrPrivate, true},
	}
	for _, tt := range tests {
		_, err := Check(tt.url, tt.blockPrivate)
		if (err != nil) != tt.wantErr {
			t.Errorf("Check(%q, %v) error=%v, wantErr=%v", tt.url, tt.blockPrivate, err, tt.wantErr)
			continue
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("Check(%q): got %v, want %v", tt.url, err, tt.want)
		}
	}
}

func TestIsPrivate(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"169.254.1.1", true},
		{"0.0.0.0", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"::1", true},
		{"fd00::1", true},
	}
	for _, tt := range tests {
		ip := net.ParseIP(tt.ip)
		if ip == nil {
			t.Fatalf("failed to parse IP %q", tt.ip)
		}
		if got := IsPrivate(ip); got != tt.private {
			t.Errorf("IsPrivate(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data := strings.Repeat("x", 100)
	got, err := LimitedReadAll(strings.NewReader(data), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(got))
	}

	if _, err = LimitedReadAll(strings.NewReader(data), 50); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("oversized read: got %v", err)
	}
}
