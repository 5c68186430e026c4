package dns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
)

// ResolverConfig contains configuration for MiekgResolver.
type ResolverConfig struct {
	// Nameservers is a list of DNS servers to query (e.g. "8.8.8.8:53").
	// If empty, system resolvers from /etc/resolv.conf are used,
	// falling back to public DNS (8.8.8.8, 1.1.1.1).
	Nameservers []string

	// Timeout is the timeout for individual DNS queries. Default is 5 seconds.
	Timeout time.Duration

	// Retries is how many times a transient failure (timeout, SERVFAIL)
	// is retried. Default is 1. NXDOMAIN is never retried.
	Retries int
}

// MiekgResolver implements Resolver with direct queries via
// github.com/miekg/dns, rotating across the configured nameservers.
type MiekgResolver struct {
	config ResolverConfig
	client *mdns.Client
}

var _ Resolver = (*MiekgResolver)(nil)

// NewResolver creates a MiekgResolver, filling in defaults for any
// zero-valued config fields.
func NewResolver(config ResolverConfig) *MiekgResolver {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Retries == 0 {
		config.Retries = 1
	}
	if len(config.Nameservers) == 0 {
		config.Nameservers = getSystemNameservers()
	}

	return &MiekgResolver{
		config: config,
		client: &mdns.Client{
			Timeout: config.Timeout,
		},
	}
}

// getSystemNameservers tries to get system DNS servers from resolv.conf.
func getSystemNameservers() []string {
	config, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(config.Servers) == 0 {
		// Fallback to common public DNS servers
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}

	servers := make([]string, 0, len(config.Servers))
	for _, s := range config.Servers {
		if !strings.Contains(s, ":") {
			s = s + ":53"
		}
		servers = append(servers, s)
	}
	return servers
}

// Config returns the resolver's effective configuration.
func (r *MiekgResolver) Config() ResolverConfig {
	return r.config
}

// query performs a DNS query, retrying transient failures once per the
// configured retry count. NXDOMAIN is terminal and returned immediately.
func (r *MiekgResolver) query(ctx context.Context, name string, qtype uint16) (*mdns.Msg, error) {
	m := new(mdns.Msg)
	m.SetQuestion(ensureAbsolute(name), qtype)
	m.RecursionDesired = true

	var lastErr error

	for attempt := 0; attempt <= r.config.Retries; attempt++ {
		for _, server := range r.config.Nameservers {
			if err := ctx.Err(); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
			}

			resp, _, err := r.client.ExchangeContext(ctx, m, server)
			if err != nil {
				if isTimeoutErr(err) {
					lastErr = fmt.Errorf("%w: %v", ErrTimeout, err)
				} else {
					lastErr = fmt.Errorf("dns query failed: %w", err)
				}
				continue
			}

			switch resp.Rcode {
			case mdns.RcodeSuccess:
				return resp, nil
			case mdns.RcodeNameError: // NXDOMAIN
				return nil, ErrNotFound
			case mdns.RcodeServerFailure:
				lastErr = ErrServFail
				continue
			case mdns.RcodeFormatError:
				return nil, ErrMalformed
			default:
				lastErr = fmt.Errorf("%w: unexpected rcode %d", ErrServFail, resp.Rcode)
				continue
			}
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrServFail
}

func isTimeoutErr(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// LookupTXT retrieves TXT records for the given domain.
func (r *MiekgResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	resp, err := r.query(ctx, name, mdns.TypeTXT)
	if err != nil {
		return nil, err
	}

	var records []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*mdns.TXT); ok {
			// TXT records may be split into multiple character strings,
			// join them per RFC 7208 Section 3.3.
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}

	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// LookupIP retrieves A and AAAA records for the given domain. A failure
// of one address family does not hide answers from the other.
func (r *MiekgResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	var ips []net.IP
	var lastErr error

	resp, err := r.query(ctx, host, mdns.TypeA)
	if err != nil && err != ErrNotFound {
		lastErr = err
	} else if resp != nil {
		for _, rr := range resp.Answer {
			if a, ok := rr.(*mdns.A); ok {
				ips = append(ips, a.A)
			}
		}
	}

	resp, err = r.query(ctx, host, mdns.TypeAAAA)
	if err != nil && err != ErrNotFound {
		if lastErr == nil {
			lastErr = err
		}
	} else if resp != nil {
		for _, rr := range resp.Answer {
			if aaaa, ok := rr.(*mdns.AAAA); ok {
				ips = append(ips, aaaa.AAAA)
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

// LookupMX retrieves MX records for the given domain.
func (r *MiekgResolver) LookupMX(ctx context.Context, name string) ([]MX, error) {
	resp, err := r.query(ctx, name, mdns.TypeMX)
	if err != nil {
		return nil, err
	}

	var records []MX
	for _, rr := range resp.Answer {
		if mx, ok := rr.(*mdns.MX); ok {
			records = append(records, MX{
				Priority: int(mx.Preference),
				Exchange: strings.TrimSuffix(mx.Mx, "."),
			})
		}
	}

	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}
