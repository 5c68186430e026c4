// Package dns provides the DNS-client capability consumed by SPF
// analysis and flattening.
//
// Three interchangeable resolver implementations are provided:
// MiekgResolver (direct UDP/TCP queries via github.com/miekg/dns),
// StdResolver (the platform resolver via net.Resolver) and DoHResolver
// (DNS-over-HTTPS via github.com/likexian/doh). CachedResolver wraps any
// of them with an injected read-through TTL cache, and MockResolver
// backs tests.
//
// All implementations normalize provider-specific answer shapes and
// error conditions at this boundary; callers only ever see the Resolver
// interface and the sentinel errors below.
package dns

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors for the four failure kinds callers distinguish.
var (
	// ErrNotFound is NXDOMAIN or an answer with no records of the
	// requested type. Terminal: retrying will not help.
	ErrNotFound = errors.New("dns: no such record")

	// ErrTimeout is a query deadline expiry. Transient.
	ErrTimeout = errors.New("dns: query timed out")

	// ErrServFail is an upstream SERVFAIL. Transient.
	ErrServFail = errors.New("dns: server failure")

	// ErrMalformed is a response that could not be interpreted.
	ErrMalformed = errors.New("dns: malformed response")
)

// MX is one mail-exchange record.
type MX struct {
	// Priority is the MX preference; lower is tried first.
	Priority int

	// Exchange is the mail server hostname.
	Exchange string
}

// Resolver is the lookup capability injected into analysis and
// flattening. Implementations must be safe for concurrent use.
type Resolver interface {
	// LookupTXT returns the TXT strings published at name. Multi-part
	// character strings are joined per RFC 7208 Section 3.3.
	LookupTXT(ctx context.Context, name string) ([]string, error)

	// LookupIP returns the A and AAAA addresses of host.
	LookupIP(ctx context.Context, host string) ([]net.IP, error)

	// LookupMX returns the MX records of name.
	LookupMX(ctx context.Context, name string) ([]MX, error)
}

// IsNotFound reports whether err is a terminal no-such-record error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTimeout reports whether err is a query timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsServFail reports whether err is an upstream server failure.
func IsServFail(err error) bool { return errors.Is(err, ErrServFail) }

// IsTemporary reports whether a failed query is worth retrying.
// NXDOMAIN and malformed answers are not.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrServFail) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ensureAbsolute ensures the domain name ends with a dot (FQDN format).
func ensureAbsolute(name string) string {
	if len(name) == 0 || name[len(name)-1] != '.' {
		return name + "."
	}
	return name
}
