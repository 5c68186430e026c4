// Kestrel analyzes and optimizes SPF DNS records.
//
// It parses published records, derives their RFC 7208 DNS lookup budget,
// expands macros, recursively flattens include chains into literal IP
// networks, and ranks which includes are worth flattening. It does not
// render SMTP-time policy decisions; that is a mail server's job.
//
// # Analysis
//
// Static analysis needs no network access:
//
//	analysis := kestrel.NewAnalyzer(nil).Analyze("v=spf1 include:_spf.example.net mx -all")
//	fmt.Println(analysis.Record.TotalLookups, analysis.Breakdown.Status)
//
// # Fetching and flattening
//
// With a resolver, records can be fetched and flattened:
//
//	resolver := dns.NewResolver(dns.ResolverConfig{
//	    Nameservers: []string{"8.8.8.8:53"},
//	})
//	a := kestrel.NewAnalyzer(resolver)
//
//	flat := a.Flatten(ctx, true, "example.com")
//	fmt.Println(flat.Domains["example.com"].FlatRecord("~all"))
//
// # Optimization
//
//	analysis, suggestions, err := a.Optimize(ctx, "example.com")
//	for _, s := range suggestions {
//	    fmt.Println(s.Mechanism, s.EstimatedSavings, s.Implementation)
//	}
//
// Alternative resolvers are available for constrained networks
// (dns.NewDoHResolver) and tests (dns.MockResolver); dns.NewCachedResolver
// adds a read-through TTL cache in front of any of them.
package kestrel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/synqronlabs/kestrel/advisor"
	"github.com/synqronlabs/kestrel/dns"
	"github.com/synqronlabs/kestrel/flatten"
	"github.com/synqronlabs/kestrel/spf"
)

// Record lookup errors.
var (
	// ErrNoRecord means the domain publishes no SPF record.
	ErrNoRecord = errors.New("kestrel: no SPF record found")

	// ErrMultipleRecords means the domain publishes more than one SPF
	// record, which RFC 7208 treats as a permanent error.
	ErrMultipleRecords = errors.New("kestrel: multiple SPF records found")
)

// Analyzer ties together parsing, budgeting, flattening and suggestion
// ranking behind one configuration point.
type Analyzer struct {
	// Resolver backs every network operation. May be nil for purely
	// static analysis.
	Resolver dns.Resolver

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger

	// MaxDepth, Timeout and Concurrency configure flattening; zero
	// values take the flatten package defaults.
	MaxDepth    int
	Timeout     time.Duration
	Concurrency int
}

// NewAnalyzer creates an Analyzer with default flattening limits.
func NewAnalyzer(resolver dns.Resolver) *Analyzer {
	return &Analyzer{Resolver: resolver}
}

// Analysis is the static analysis of one record.
type Analysis struct {
	// Domain is set when the record was fetched rather than supplied.
	Domain string

	// Record is the parsed record.
	Record *spf.Record

	// Breakdown is the per-category lookup budget.
	Breakdown *spf.Breakdown
}

// Analyze parses and budgets a raw record without touching the network.
func (a *Analyzer) Analyze(raw string) *Analysis {
	record := spf.Parse(raw)
	return &Analysis{
		Record:    record,
		Breakdown: spf.ComputeBreakdown(record),
	}
}

// AnalyzeDomain fetches a domain's SPF record and analyzes it.
func (a *Analyzer) AnalyzeDomain(ctx context.Context, domain string) (*Analysis, error) {
	raw, err := a.LookupRecord(ctx, domain)
	if err != nil {
		return nil, err
	}

	analysis := a.Analyze(raw)
	analysis.Domain = domain
	return analysis, nil
}

// LookupRecord fetches the single SPF record a domain publishes.
func (a *Analyzer) LookupRecord(ctx context.Context, domain string) (string, error) {
	if a.Resolver == nil {
		return "", fmt.Errorf("kestrel: no resolver configured")
	}

	txts, err := a.Resolver.LookupTXT(ctx, domain)
	if dns.IsNotFound(err) {
		return "", fmt.Errorf("%w for %s", ErrNoRecord, domain)
	}
	if err != nil {
		return "", fmt.Errorf("kestrel: TXT lookup for %s: %w", domain, err)
	}

	var found string
	for _, txt := range txts {
		if !strings.HasPrefix(strings.TrimSpace(txt), "v=spf1") {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("%w for %s", ErrMultipleRecords, domain)
		}
		found = txt
	}

	if found == "" {
		return "", fmt.Errorf("%w for %s", ErrNoRecord, domain)
	}
	return found, nil
}

// Flatten resolves the given domains' chains into literal networks.
func (a *Analyzer) Flatten(ctx context.Context, recursive bool, domains ...string) *flatten.Result {
	f := flatten.New(a.Resolver, a.Logger)
	return f.Flatten(ctx, flatten.Options{
		Domains:     domains,
		Recursive:   recursive,
		MaxDepth:    a.MaxDepth,
		Timeout:     a.Timeout,
		Concurrency: a.Concurrency,
	})
}

// Optimize fetches, analyzes and flattens a domain, returning ranked
// flattening suggestions alongside the analysis.
func (a *Analyzer) Optimize(ctx context.Context, domain string) (*Analysis, []advisor.Suggestion, error) {
	analysis, err := a.AnalyzeDomain(ctx, domain)
	if err != nil {
		return nil, nil, err
	}

	flat := a.Flatten(ctx, true, includeTargets(analysis.Record)...)
	return analysis, advisor.Suggest(analysis.Record, flat), nil
}

// includeTargets lists the include arguments of a record.
func includeTargets(record *spf.Record) []string {
	var out []string
	for _, m := range record.Mechanisms {
		if m.Type == spf.MechInclude {
			out = append(out, m.Value)
		}
	}
	return out
}
