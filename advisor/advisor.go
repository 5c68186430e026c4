// Package advisor ranks flattening opportunities for an SPF record.
//
// The advisor is a pure consumer: it works from a parsed record and a
// flattening result, and takes the mail-volume impact percentage as a
// parameter supplied by whatever analytics layer sits above it. It never
// performs DNS queries or reads mail logs itself.
package advisor

import (
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/synqronlabs/kestrel/flatten"
	"github.com/synqronlabs/kestrel/spf"
)

// Impact grades how much of the caller's mail flow a change touches.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Fixed mail-volume thresholds for impact grading, in percent.
const (
	mediumVolumePct = 5
	highVolumePct   = 20
)

// GradeImpact maps an externally supplied mail-volume-affected
// percentage to an impact grade.
func GradeImpact(volumePct float64) Impact {
	switch {
	case volumePct >= highVolumePct:
		return ImpactHigh
	case volumePct >= mediumVolumePct:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// Suggestion proposes flattening one include mechanism.
type Suggestion struct {
	// Mechanism is the include as published, e.g. "include:_spf.example.com".
	Mechanism string

	// Target is the include's domain argument.
	Target string

	// Provider is the effective organizational domain of Target, so a
	// UI can group suggestions per ESP.
	Provider string

	// EstimatedSavings is the include's own lookup weight plus every
	// lookup its resolution would have triggered.
	EstimatedSavings int

	// Implementation is the full replacement record with this include
	// flattened to literal networks, preserving the original
	// qualifier and any trailing all or redirect.
	Implementation string
}

// Suggest proposes a flattening for every include whose resolved chain
// costs more lookups than its literal form (which costs none). Includes
// that failed to resolve produce no suggestion; replacing them would
// change the record's meaning. Results are ordered by savings,
// largest first.
func Suggest(record *spf.Record, flat *flatten.Result) []Suggestion {
	if flat == nil || record == nil {
		return nil
	}

	var out []Suggestion
	for _, m := range record.Mechanisms {
		if m.Type != spf.MechInclude {
			continue
		}
		dr, ok := flat.Domains[m.Value]
		if !ok || !dr.Resolved() || len(dr.IPs) == 0 {
			continue
		}

		savings := m.Lookups + chainCost(flat, m.Value, map[string]bool{})
		out = append(out, Suggestion{
			Mechanism:        m.String(),
			Target:           m.Value,
			Provider:         providerOf(m.Value),
			EstimatedSavings: savings,
			Implementation:   rewrite(record, m.Value, dr),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EstimatedSavings != out[j].EstimatedSavings {
			return out[i].EstimatedSavings > out[j].EstimatedSavings
		}
		return out[i].Mechanism < out[j].Mechanism
	})
	return out
}

// chainCost sums the static lookup cost of a domain's record and every
// record below it. The seen set keeps diamond-shaped chains from being
// billed twice.
func chainCost(flat *flatten.Result, domain string, seen map[string]bool) int {
	if seen[domain] {
		return 0
	}
	seen[domain] = true

	dr, ok := flat.Domains[domain]
	if !ok {
		return 0
	}

	total := dr.Lookups
	for _, inc := range dr.Includes {
		total += chainCost(flat, inc, seen)
	}
	return total
}

// providerOf reduces an include target to its organizational domain.
func providerOf(target string) string {
	org, err := publicsuffix.EffectiveTLDPlusOne(strings.TrimSuffix(target, "."))
	if err != nil {
		return target
	}
	return org
}

// rewrite rebuilds the record with one include replaced by its resolved
// networks. The include's qualifier carries over to every generated
// token; all other terms, including a trailing all or redirect, are
// preserved in place.
func rewrite(record *spf.Record, target string, dr *flatten.DomainResult) string {
	var b strings.Builder
	b.WriteString("v=spf1")

	for _, m := range record.Mechanisms {
		if m.Type == spf.MechInclude && m.Value == target {
			for _, ip := range dr.IPs {
				b.WriteByte(' ')
				if m.Qualifier != spf.QualifierPass {
					b.WriteString(string(m.Qualifier))
				}
				b.WriteString(ipMechanism(ip))
			}
			continue
		}
		b.WriteByte(' ')
		b.WriteString(m.String())
	}

	for _, mod := range record.Modifiers {
		b.WriteByte(' ')
		b.WriteString(mod.String())
	}

	return b.String()
}

func ipMechanism(ip string) string {
	if strings.Contains(ip, ":") {
		return "ip6:" + ip
	}
	return "ip4:" + ip
}
