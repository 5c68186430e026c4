package dns

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	doh "github.com/likexian/doh-go"
	dohdns "github.com/likexian/doh-go/dns"
)

// DNS-over-JSON numeric answer types, per RFC 1035.
const (
	rrTypeA    = 1
	rrTypeTXT  = 16
	rrTypeMX   = 15
	rrTypeAAAA = 28
)

// JSON rcodes returned in the DoH Status field.
const (
	rcodeNoError  = 0
	rcodeServFail = 2
	rcodeNXDomain = 3
)

// DoHResolver implements Resolver over DNS-over-HTTPS using
// github.com/likexian/doh. Handy from networks where plain port-53
// queries are intercepted or rate-limited.
//
// The JSON answer shapes differ slightly per provider (quoting of TXT
// data, trailing dots). All of that is normalized here; nothing
// provider-specific leaks past this type.
type DoHResolver struct {
	c *doh.DoH
}

var _ Resolver = (*DoHResolver)(nil)

// NewDoHResolver creates a resolver that queries the given providers
// (doh.CloudflareProvider, doh.GoogleProvider, doh.Quad9Provider),
// falling back to Cloudflare and Google when none are specified.
func NewDoHResolver(providers ...int) *DoHResolver {
	if len(providers) == 0 {
		providers = []int{doh.CloudflareProvider, doh.GoogleProvider}
	}
	return &DoHResolver{c: doh.Use(providers...)}
}

// Close releases the underlying provider clients.
func (r *DoHResolver) Close() {
	r.c.Close()
}

// query runs one DoH question and maps the JSON status to the package's
// sentinel errors.
func (r *DoHResolver) query(ctx context.Context, name string, qtype dohdns.Type) (*dohdns.Response, error) {
	rsp, err := r.c.Query(ctx, dohdns.Domain(name), qtype)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("doh query failed: %w", err)
	}

	switch rsp.Status {
	case rcodeNoError:
		return rsp, nil
	case rcodeNXDomain:
		return nil, ErrNotFound
	case rcodeServFail:
		return nil, ErrServFail
	default:
		return nil, fmt.Errorf("%w: doh status %d", ErrServFail, rsp.Status)
	}
}

// LookupTXT retrieves TXT records over DoH.
func (r *DoHResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	rsp, err := r.query(ctx, name, dohdns.TypeTXT)
	if err != nil {
		return nil, err
	}

	var records []string
	for _, a := range rsp.Answer {
		if a.Type != rrTypeTXT {
			continue
		}
		records = append(records, normalizeTXTData(a.Data))
	}

	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// LookupIP retrieves A and AAAA records over DoH.
func (r *DoHResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	var ips []net.IP
	var lastErr error

	for _, qtype := range []dohdns.Type{dohdns.TypeA, dohdns.TypeAAAA} {
		rsp, err := r.query(ctx, host, qtype)
		if err != nil {
			if err != ErrNotFound && lastErr == nil {
				lastErr = err
			}
			continue
		}
		for _, a := range rsp.Answer {
			if a.Type != rrTypeA && a.Type != rrTypeAAAA {
				// CNAME chain entries show up in the answer section.
				continue
			}
			if ip := net.ParseIP(a.Data); ip != nil {
				ips = append(ips, ip)
			}
		}
	}

	if len(ips) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrNotFound
	}
	return ips, nil
}

// LookupMX retrieves MX records over DoH.
func (r *DoHResolver) LookupMX(ctx context.Context, name string) ([]MX, error) {
	rsp, err := r.query(ctx, name, dohdns.TypeMX)
	if err != nil {
		return nil, err
	}

	var records []MX
	for _, a := range rsp.Answer {
		if a.Type != rrTypeMX {
			continue
		}
		mx, err := normalizeMXData(a.Data)
		if err != nil {
			return nil, err
		}
		records = append(records, mx)
	}

	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// normalizeTXTData strips the quoting some providers keep around TXT
// character strings and joins multi-part strings ("a" "b").
func normalizeTXTData(data string) string {
	if !strings.Contains(data, `"`) {
		return data
	}
	parts := strings.Split(data, `"`)
	var b strings.Builder
	for i, p := range parts {
		// Odd indexes are inside quotes; even ones are the separators.
		if i%2 == 1 {
			b.WriteString(p)
		}
	}
	return b.String()
}

// normalizeMXData parses the "10 mail.example.com." presentation form
// used by DoH JSON answers.
func normalizeMXData(data string) (MX, error) {
	pref, host, found := strings.Cut(strings.TrimSpace(data), " ")
	if !found {
		return MX{}, fmt.Errorf("%w: mx answer %q", ErrMalformed, data)
	}
	p, err := strconv.Atoi(pref)
	if err != nil {
		return MX{}, fmt.Errorf("%w: mx preference %q", ErrMalformed, pref)
	}
	return MX{Priority: p, Exchange: strings.TrimSuffix(host, ".")}, nil
}
