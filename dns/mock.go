package dns

import (
	"context"
	"net"
	"slices"
	"sync"
	"sync/atomic"
)

// MockResolver is a Resolver used for testing.
// Set DNS records in the fields, which map FQDNs (with trailing dot) to values.
type MockResolver struct {
	A    map[string][]string
	AAAA map[string][]string
	TXT  map[string][]string
	MX   map[string][]MX

	// Fail contains queries that return SERVFAIL.
	// Format: "type name", e.g. "txt example.com." where type is lowercase.
	Fail []string

	// TimeoutFor contains queries that return a timeout.
	// Same format as Fail.
	TimeoutFor []string

	// FailOnce makes Fail entries succeed from the second attempt on,
	// for exercising retry behavior.
	FailOnce bool

	failed sync.Map // mockReq string -> already failed

	// Queries counts every lookup issued, for cache tests.
	Queries atomic.Int64
}

var _ Resolver = (*MockResolver)(nil)

// mockReq represents a mock DNS request.
type mockReq struct {
	Type string // E.g. "txt", "a", "aaaa", "mx"
	Name string // FQDN with trailing dot
}

func (mr mockReq) String() string {
	return mr.Type + " " + mr.Name
}

// check applies the configured failure behavior for one query.
func (r *MockResolver) check(ctx context.Context, mr mockReq) error {
	r.Queries.Add(1)

	if err := ctx.Err(); err != nil {
		return ErrTimeout
	}
	if slices.Contains(r.TimeoutFor, mr.String()) {
		return ErrTimeout
	}
	if slices.Contains(r.Fail, mr.String()) {
		if r.FailOnce {
			if _, loaded := r.failed.LoadOrStore(mr.String(), true); !loaded {
				return ErrServFail
			}
			return nil
		}
		return ErrServFail
	}
	return nil
}

// LookupTXT returns TXT records for the given domain.
func (r *MockResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	fqdn := ensureAbsolute(name)
	if err := r.check(ctx, mockReq{"txt", fqdn}); err != nil {
		return nil, err
	}

	records, ok := r.TXT[fqdn]
	if !ok || len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// LookupIP returns A and AAAA records for the given domain.
func (r *MockResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	fqdn := ensureAbsolute(host)
	if err := r.check(ctx, mockReq{"a", fqdn}); err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, ip := range r.A[fqdn] {
		ips = append(ips, net.ParseIP(ip))
	}
	for _, ip := range r.AAAA[fqdn] {
		ips = append(ips, net.ParseIP(ip))
	}

	if len(ips) == 0 {
		return nil, ErrNotFound
	}
	return ips, nil
}

// LookupMX returns MX records for the given domain.
func (r *MockResolver) LookupMX(ctx context.Context, name string) ([]MX, error) {
	fqdn := ensureAbsolute(name)
	if err := r.check(ctx, mockReq{"mx", fqdn}); err != nil {
		return nil, err
	}

	records, ok := r.MX[fqdn]
	if !ok || len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}
