package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// StdResolver implements Resolver using the standard library net
// package. Useful where the platform resolver configuration (search
// domains, split DNS) should be honored.
type StdResolver struct {
	resolver *net.Resolver
}

var _ Resolver = (*StdResolver)(nil)

// NewStdResolver creates a resolver using the standard library.
func NewStdResolver() *StdResolver {
	return &StdResolver{
		resolver: net.DefaultResolver,
	}
}

// NewStdResolverWithDialer creates a resolver using a custom dialer.
// This allows pointing the stdlib resolver at specific DNS servers.
func NewStdResolverWithDialer(dial func(ctx context.Context, network, address string) (net.Conn, error)) *StdResolver {
	return &StdResolver{
		resolver: &net.Resolver{
			PreferGo: true,
			Dial:     dial,
		},
	}
}

// LookupTXT retrieves TXT records using the standard library.
func (r *StdResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSuffix(name, ".")

	records, err := r.resolver.LookupTXT(ctx, name)
	if err != nil {
		return nil, convertError(err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// LookupIP retrieves A and AAAA records using the standard library.
func (r *StdResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	host = strings.TrimSuffix(host, ".")

	ips, err := r.resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, convertError(err)
	}
	if len(ips) == 0 {
		return nil, ErrNotFound
	}
	return ips, nil
}

// LookupMX retrieves MX records using the standard library.
func (r *StdResolver) LookupMX(ctx context.Context, name string) ([]MX, error) {
	name = strings.TrimSuffix(name, ".")

	mxs, err := r.resolver.LookupMX(ctx, name)
	if err != nil {
		return nil, convertError(err)
	}
	if len(mxs) == 0 {
		return nil, ErrNotFound
	}

	records := make([]MX, 0, len(mxs))
	for _, mx := range mxs {
		records = append(records, MX{
			Priority: int(mx.Pref),
			Exchange: strings.TrimSuffix(mx.Host, "."),
		})
	}
	return records, nil
}

// convertError converts standard library DNS errors to package errors.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return ErrNotFound
		}
		if dnsErr.IsTimeout {
			return ErrTimeout
		}
		if dnsErr.IsTemporary {
			return ErrServFail
		}
	}

	return fmt.Errorf("dns lookup failed: %w", err)
}
