package dns

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		notFound  bool
		timeout   bool
		servFail  bool
		temporary bool
	}{
		{"nil", nil, false, false, false, false},
		{"not found", ErrNotFound, true, false, false, false},
		{"timeout", ErrTimeout, false, true, false, true},
		{"servfail", ErrServFail, false, false, true, true},
		{"malformed", ErrMalformed, false, false, false, false},
		{"wrapped not found", fmt.Errorf("lookup example.com: %w", ErrNotFound), true, false, false, false},
		{"wrapped servfail", fmt.Errorf("query: %w", ErrServFail), false, false, true, true},
		{"deadline exceeded", context.DeadlineExceeded, false, false, false, true},
		{"unrelated", errors.New("boom"), false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v, want %v", got, tt.notFound)
			}
			if got := IsTimeout(tt.err); got != tt.timeout {
				t.Errorf("IsTimeout = %v, want %v", got, tt.timeout)
			}
			if got := IsServFail(tt.err); got != tt.servFail {
				t.Errorf("IsServFail = %v, want %v", got, tt.servFail)
			}
			if got := IsTemporary(tt.err); got != tt.temporary {
				t.Errorf("IsTemporary = %v, want %v", got, tt.temporary)
			}
		})
	}
}

func TestEnsureAbsolute(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"example.com", "example.com."},
		{"example.com.", "example.com."},
		{"", "."},
	}
	for _, tt := range tests {
		if got := ensureAbsolute(tt.in); got != tt.want {
			t.Errorf("ensureAbsolute(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMockResolver(t *testing.T) {
	mock := &MockResolver{
		TXT: map[string][]string{
			"example.com.": {"v=spf1 -all"},
		},
		A: map[string][]string{
			"mail.example.com.": {"192.0.2.1"},
		},
		AAAA: map[string][]string{
			"mail.example.com.": {"2001:db8::1"},
		},
		Fail:       []string{"txt fail.example.com."},
		TimeoutFor: []string{"txt slow.example.com."},
	}
	ctx := context.Background()

	t.Run("relative names match fqdn keys", func(t *testing.T) {
		txts, err := mock.LookupTXT(ctx, "example.com")
		if err != nil {
			t.Fatal(err)
		}
		if len(txts) != 1 {
			t.Fatalf("unexpected answer %v", txts)
		}
	})

	t.Run("a and aaaa merged", func(t *testing.T) {
		ips, err := mock.LookupIP(ctx, "mail.example.com")
		if err != nil {
			t.Fatal(err)
		}
		if len(ips) != 2 {
			t.Errorf("expected merged A+AAAA, got %v", ips)
		}
	})

	t.Run("missing name is not found", func(t *testing.T) {
		if _, err := mock.LookupTXT(ctx, "other.example.com"); !IsNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("configured failures", func(t *testing.T) {
		if _, err := mock.LookupTXT(ctx, "fail.example.com"); !IsServFail(err) {
			t.Errorf("expected ErrServFail, got %v", err)
		}
		if _, err := mock.LookupTXT(ctx, "slow.example.com"); !IsTimeout(err) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("cancelled context times out", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := mock.LookupTXT(cancelled, "example.com"); !IsTimeout(err) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})
}

func TestMockResolverFailOnce(t *testing.T) {
	mock := &MockResolver{
		TXT: map[string][]string{
			"flaky.example.com.": {"v=spf1 -all"},
		},
		Fail:     []string{"txt flaky.example.com."},
		FailOnce: true,
	}
	ctx := context.Background()

	if _, err := mock.LookupTXT(ctx, "flaky.example.com"); !IsServFail(err) {
		t.Fatalf("first attempt should fail, got %v", err)
	}
	if _, err := mock.LookupTXT(ctx, "flaky.example.com"); err != nil {
		t.Fatalf("second attempt should succeed, got %v", err)
	}
}
