package dns

import (
	"context"
	"testing"
	"time"
)

func TestCachedResolverServesFromCache(t *testing.T) {
	mock := &MockResolver{
		TXT: map[string][]string{
			"example.com.": {"v=spf1 -all"},
		},
		A: map[string][]string{
			"mail.example.com.": {"192.0.2.1"},
		},
		MX: map[string][]MX{
			"example.com.": {{Priority: 10, Exchange: "mail.example.com"}},
		},
	}
	c := NewCachedResolver(mock, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		txts, err := c.LookupTXT(ctx, "example.com")
		if err != nil {
			t.Fatal(err)
		}
		if len(txts) != 1 || txts[0] != "v=spf1 -all" {
			t.Fatalf("unexpected answer %v", txts)
		}
	}
	if n := mock.Queries.Load(); n != 1 {
		t.Errorf("expected 1 upstream TXT query, got %d", n)
	}

	mock.Queries.Store(0)
	for i := 0; i < 3; i++ {
		if _, err := c.LookupIP(ctx, "mail.example.com"); err != nil {
			t.Fatal(err)
		}
		if _, err := c.LookupMX(ctx, "example.com"); err != nil {
			t.Fatal(err)
		}
	}
	if n := mock.Queries.Load(); n != 2 {
		t.Errorf("expected 2 upstream queries, got %d", n)
	}
}

func TestCachedResolverCachesNotFound(t *testing.T) {
	mock := &MockResolver{}
	c := NewCachedResolver(mock, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.LookupTXT(ctx, "missing.example.com"); !IsNotFound(err) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if n := mock.Queries.Load(); n != 1 {
		t.Errorf("NXDOMAIN not cached: %d upstream queries", n)
	}
}

func TestCachedResolverDoesNotCacheFailures(t *testing.T) {
	mock := &MockResolver{
		Fail: []string{"txt example.com."},
	}
	c := NewCachedResolver(mock, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.LookupTXT(ctx, "example.com"); !IsServFail(err) {
			t.Fatalf("expected ErrServFail, got %v", err)
		}
	}
	if n := mock.Queries.Load(); n != 3 {
		t.Errorf("transient failures must not be cached: %d upstream queries", n)
	}
}

func TestCachedResolverExpiry(t *testing.T) {
	mock := &MockResolver{
		TXT: map[string][]string{
			"example.com.": {"v=spf1 -all"},
		},
	}
	c := NewCachedResolver(mock, time.Minute)

	clock := time.Now()
	c.now = func() time.Time { return clock }

	ctx := context.Background()
	if _, err := c.LookupTXT(ctx, "example.com"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.LookupTXT(ctx, "example.com"); err != nil {
		t.Fatal(err)
	}
	if n := mock.Queries.Load(); n != 1 {
		t.Fatalf("expected cache hit before expiry, got %d queries", n)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := c.LookupTXT(ctx, "example.com"); err != nil {
		t.Fatal(err)
	}
	if n := mock.Queries.Load(); n != 2 {
		t.Errorf("expected refetch after expiry, got %d queries", n)
	}
}
