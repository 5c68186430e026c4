// Package flatten implements recursive SPF flattening: collapsing the
// include/a/mx chains of a record into the literal IP networks they
// authorize, with cycle and depth protection.
//
// Flattening performs network I/O through an injected dns.Resolver.
// Every failure is scoped to the domain or mechanism that caused it; the
// operation always returns the best partial result it could compute. A
// record whose providers all answer identically across two runs yields
// identical IP sets, which is what diff and revert views build on.
package flatten

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/synqronlabs/kestrel/dns"
	"github.com/synqronlabs/kestrel/spf"
)

// Resolution limits.
const (
	// DefaultMaxDepth bounds include recursion. Three levels covers
	// every mainstream ESP chain observed in the wild.
	DefaultMaxDepth = 3

	// DefaultTimeout is the wall-clock budget for one Flatten call.
	DefaultTimeout = 30 * time.Second

	// DefaultConcurrency bounds simultaneous in-flight domain
	// resolutions at each sibling level.
	DefaultConcurrency = 8
)

// Options configures one Flatten call.
type Options struct {
	// Domains are the top-level domains to flatten.
	Domains []string

	// Recursive resolves nested includes instead of only listing them.
	Recursive bool

	// MaxDepth bounds include recursion. Default DefaultMaxDepth.
	MaxDepth int

	// Timeout is the wall-clock budget for the whole operation. On
	// expiry, partial results are returned with a timeout error
	// recorded for each unresolved domain. Default DefaultTimeout.
	Timeout time.Duration

	// Concurrency bounds the sibling worker pool. Default
	// DefaultConcurrency.
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// DomainResult is the outcome of resolving one domain's SPF record.
type DomainResult struct {
	// IPs is the de-duplicated, sorted set of literal networks the
	// domain's chain authorizes. ip4/ip6 values keep their CIDR
	// suffixes; a/mx resolutions are bare addresses.
	IPs []string

	// Includes lists the include targets encountered, transitively
	// when resolving recursively.
	Includes []string

	// Errors holds every per-domain failure, none of which aborted
	// the operation.
	Errors []string

	// Lookups is the static DNS cost of this domain's own record,
	// excluding nested chains.
	Lookups int
}

// Resolved reports whether the domain produced a usable record with no
// recorded failures, i.e. the flattened form is safe to apply as-is.
func (r *DomainResult) Resolved() bool {
	return len(r.Errors) == 0
}

// Result is the aggregate outcome of one Flatten call.
type Result struct {
	// Domains maps every domain visited during resolution (top-level
	// and nested) to its result.
	Domains map[string]*DomainResult

	// TotalIPs is the size of the union of all resolved IP sets.
	TotalIPs int

	// Errors holds operation-level failures not tied to one domain.
	Errors []string
}

// Flattener resolves SPF chains into literal addresses.
type Flattener struct {
	resolver dns.Resolver
	log      *slog.Logger
}

// New creates a Flattener using the given resolver. A nil logger
// disables logging.
func New(resolver dns.Resolver, logger *slog.Logger) *Flattener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Flattener{resolver: resolver, log: logger}
}

// operation carries the shared state of one Flatten call. The active
// recursion path is NOT part of it: the path travels down each branch as
// a copied slice so concurrent sibling branches cannot see each other's
// stacks.
type operation struct {
	f    *Flattener
	opts Options

	mu      sync.Mutex
	domains map[string]*DomainResult
}

// Flatten resolves every configured domain concurrently and aggregates
// the results. It never returns an error: all failures are recorded in
// the result.
func (f *Flattener) Flatten(ctx context.Context, opts Options) *Result {
	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	op := &operation{
		f:       f,
		opts:    opts,
		domains: make(map[string]*DomainResult),
	}

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for _, domain := range opts.Domains {
		domain := domain
		g.Go(func() error {
			op.resolve(ctx, domain, nil, 0)
			return nil
		})
	}
	g.Wait()

	res := &Result{Domains: op.domains}

	union := make(map[string]struct{})
	for _, dr := range op.domains {
		for _, ip := range dr.IPs {
			union[ip] = struct{}{}
		}
	}
	res.TotalIPs = len(union)

	if err := ctx.Err(); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("operation timed out after %s", opts.Timeout))
	}

	return res
}

// resolve processes one domain and returns its result. path is the
// active recursion stack leading to (but not including) domain; it is
// extended by copy, never mutated in place, so sibling branches stay
// independent without locking.
func (op *operation) resolve(ctx context.Context, domain string, path []string, depth int) *DomainResult {
	res := &DomainResult{}
	defer func() {
		normalize(res)
		op.store(domain, res)
	}()

	if err := ctx.Err(); err != nil {
		res.Errors = append(res.Errors, TimeoutError{Domain: domain}.Error())
		return res
	}

	if depth >= op.opts.MaxDepth {
		res.Errors = append(res.Errors, DepthExceededError{Domain: domain, Depth: depth}.Error())
		return res
	}

	if slices.Contains(path, domain) {
		op.f.log.Warn("include cycle detected", "domain", domain, "path", path)
		res.Errors = append(res.Errors, CycleError{Domain: domain, Path: path}.Error())
		return res
	}
	path = append(slices.Clip(slices.Clone(path)), domain)

	record, err := op.fetchRecord(ctx, domain)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	res.Lookups = record.TotalLookups

	var includes []string
	for _, m := range record.Mechanisms {
		switch m.Type {
		case spf.MechIP4, spf.MechIP6:
			res.IPs = append(res.IPs, m.Value)

		case spf.MechInclude:
			res.Includes = append(res.Includes, m.Value)
			includes = append(includes, m.Value)

		case spf.MechA:
			op.resolveA(ctx, hostFor(m.Value, domain), res)

		case spf.MechMX:
			op.resolveMX(ctx, hostFor(m.Value, domain), res)

		case spf.MechExists, spf.MechPTR, spf.MechAll:
			// Not static address sources: exists is a per-sender
			// conditional check, ptr is deprecated, all is the
			// fallback policy marker.
		}
	}

	if op.opts.Recursive && len(includes) > 0 {
		op.recurse(ctx, includes, path, depth, res)
	}

	return res
}

// fetchRecord queries TXT and parses the domain's SPF record.
func (op *operation) fetchRecord(ctx context.Context, domain string) (*spf.Record, error) {
	txts, err := op.f.resolver.LookupTXT(ctx, domain)
	if err != nil {
		return nil, dnsFailure(domain, "TXT", err)
	}

	for _, txt := range txts {
		if strings.HasPrefix(strings.TrimSpace(txt), "v=spf1") {
			return spf.Parse(txt), nil
		}
	}
	return nil, fmt.Errorf("%s: no SPF record in TXT answers", domain)
}

// recurse resolves sibling includes concurrently through a bounded pool
// and merges the children into res.
func (op *operation) recurse(ctx context.Context, includes, path []string, depth int, res *DomainResult) {
	children := make([]*DomainResult, len(includes))

	var g errgroup.Group
	g.SetLimit(op.opts.Concurrency)
	for i, target := range includes {
		i, target := i, target
		g.Go(func() error {
			children[i] = op.resolve(ctx, target, path, depth+1)
			return nil
		})
	}
	g.Wait()

	for _, child := range children {
		res.IPs = append(res.IPs, child.IPs...)
		res.Includes = append(res.Includes, child.Includes...)
		res.Errors = append(res.Errors, child.Errors...)
	}
}

// resolveA appends the A/AAAA addresses of host.
func (op *operation) resolveA(ctx context.Context, host string, res *DomainResult) {
	ips, err := op.f.resolver.LookupIP(ctx, host)
	if err != nil {
		res.Errors = append(res.Errors, dnsFailure(host, "A", err).Error())
		return
	}
	for _, ip := range ips {
		res.IPs = append(res.IPs, ip.String())
	}
}

// resolveMX resolves the MX exchanges of host and appends each
// exchange's addresses. One failing exchange does not abort the others.
func (op *operation) resolveMX(ctx context.Context, host string, res *DomainResult) {
	mxs, err := op.f.resolver.LookupMX(ctx, host)
	if err != nil {
		res.Errors = append(res.Errors, dnsFailure(host, "MX", err).Error())
		return
	}

	for _, mx := range mxs {
		if mx.Exchange == "" || mx.Exchange == "." {
			// Explicit "no mail" record.
			continue
		}
		ips, err := op.f.resolver.LookupIP(ctx, mx.Exchange)
		if err != nil {
			res.Errors = append(res.Errors, dnsFailure(mx.Exchange, "A", err).Error())
			continue
		}
		for _, ip := range ips {
			res.IPs = append(res.IPs, ip.String())
		}
	}
}

// store records a domain's result in the shared map. A result carrying
// addresses wins over an error-only one from another branch (depth
// cut-offs and cycles produce empty results for domains that resolved
// fine elsewhere).
func (op *operation) store(domain string, res *DomainResult) {
	op.mu.Lock()
	defer op.mu.Unlock()

	existing, ok := op.domains[domain]
	if ok && len(existing.IPs) >= len(res.IPs) {
		return
	}
	op.domains[domain] = res
}

// hostFor picks the lookup target for an a/mx mechanism: the mechanism's
// own domain when given, the current domain otherwise. CIDR suffixes are
// not part of the DNS name.
func hostFor(value, current string) string {
	host, _, _ := strings.Cut(value, "/")
	if host == "" {
		return current
	}
	return host
}

// normalize de-duplicates and sorts the IP set so results are
// order-independent across runs.
func normalize(res *DomainResult) {
	slices.Sort(res.IPs)
	res.IPs = slices.Compact(res.IPs)
}
