package spf

import (
	"fmt"
	"net"
	"strings"
)

// MechanismType identifies an SPF mechanism keyword.
type MechanismType string

const (
	MechAll     MechanismType = "all"
	MechInclude MechanismType = "include"
	MechA       MechanismType = "a"
	MechMX      MechanismType = "mx"
	MechPTR     MechanismType = "ptr"
	MechIP4     MechanismType = "ip4"
	MechIP6     MechanismType = "ip6"
	MechExists  MechanismType = "exists"
)

// ModifierType identifies an SPF modifier keyword.
type ModifierType string

const (
	ModRedirect ModifierType = "redirect"
	ModExp      ModifierType = "exp"
	ModUnknown  ModifierType = "unknown"
)

// Qualifier sets the result if a mechanism matches.
// "+" means "pass", "-" means "fail", "?" means "neutral", "~" means "softfail".
type Qualifier string

const (
	QualifierPass     Qualifier = "+"
	QualifierFail     Qualifier = "-"
	QualifierSoftfail Qualifier = "~"
	QualifierNeutral  Qualifier = "?"
)

// Compliance classifies a record against the RFC 7208 lookup budget.
type Compliance string

const (
	// ComplianceOK means the record parses cleanly and stays comfortably
	// under the 10-lookup budget.
	ComplianceOK Compliance = "compliant"

	// ComplianceWarning means the record is valid but consumes 8-10
	// lookups, leaving little or no headroom.
	ComplianceWarning Compliance = "warning"

	// ComplianceFail means the record exceeds the lookup budget or
	// contains parse errors. Receivers evaluating it will permerror.
	ComplianceFail Compliance = "fail"
)

// Lookup budget constants per RFC 7208 Section 4.6.4.
const (
	// LookupLimit is the hard cap on DNS-querying terms per evaluation.
	LookupLimit = 10

	// lookupWarnThreshold is where a record is close enough to the cap
	// that adding one more ESP include will break it.
	lookupWarnThreshold = 8
)

// lookupWeight is the static DNS cost of each term. The implicit
// per-exchange A lookups of "mx" are incurred during flattening and are
// deliberately not part of the RFC 7208 static budget.
var lookupWeight = map[MechanismType]int{
	MechAll:     0,
	MechInclude: 1,
	MechA:       1,
	MechMX:      1,
	MechPTR:     1,
	MechIP4:     0,
	MechIP6:     0,
	MechExists:  1,
}

// ParseError is a localized error for a single malformed token.
// The parser records it and keeps going; it never aborts the record.
type ParseError struct {
	// Token is the raw token that failed to parse.
	Token string

	// Pos is the zero-based token position within the record.
	Pos int

	// Reason describes what was wrong with the token.
	Reason string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("spf: token %d %q: %s", e.Pos, e.Token, e.Reason)
}

// Mechanism is a single parsed SPF directive.
type Mechanism struct {
	// Type is the mechanism keyword.
	Type MechanismType

	// Qualifier is the explicit or default ("+") qualifier.
	Qualifier Qualifier

	// Value is the parameter after ":" or "/", empty when absent.
	// For "a"/"mx" a CIDR suffix is retained (e.g. "mail.example.com/28").
	Value string

	// Lookups is the static DNS cost of this mechanism.
	Lookups int

	// HasMacros reports whether Value contains %{...} macros.
	HasMacros bool

	// MacroCount is the number of macros found in Value.
	MacroCount int

	// ResolvedIPs is populated by the flattener, never by the parser.
	ResolvedIPs []string
}

// String renders the mechanism in record form. The default "+" qualifier
// is omitted, matching the common published style.
func (m Mechanism) String() string {
	var b strings.Builder
	if m.Qualifier != QualifierPass {
		b.WriteString(string(m.Qualifier))
	}
	b.WriteString(string(m.Type))
	if m.Value != "" {
		if !strings.HasPrefix(m.Value, "/") {
			b.WriteByte(':')
		}
		b.WriteString(m.Value)
	}
	return b.String()
}

// Modifier is a parsed name=value modifier.
type Modifier struct {
	// Type is redirect, exp or unknown.
	Type ModifierType

	// Name is the original modifier name; relevant for unknown modifiers.
	Name string

	// Value is the text after "=".
	Value string

	// Lookups is the static DNS cost (1 for redirect, 0 otherwise).
	Lookups int

	// HasMacros reports whether Value contains %{...} macros.
	HasMacros bool
}

// String renders the modifier in record form.
func (m Modifier) String() string {
	return m.Name + "=" + m.Value
}

// Record is a parsed SPF record. It is created by Parse and not mutated
// afterwards; analysis passes return derived values instead.
type Record struct {
	// Version is "spf1" when the version token was present and correct.
	Version string

	// Mechanisms in published order.
	Mechanisms []Mechanism

	// Modifiers in published order.
	Modifiers []Modifier

	// TotalLookups is the summed static DNS cost of all terms.
	TotalLookups int

	// Raw is the original record text.
	Raw string

	// Errors are the localized per-token parse errors.
	Errors []ParseError

	// Warnings flag legal but problematic constructs.
	Warnings []string

	// Valid is false when the record does not start with "v=spf1".
	Valid bool
}

// String renders the record back to canonical TXT form from the parsed
// terms. Tokens that failed to parse are not included.
func (r *Record) String() string {
	var b strings.Builder
	b.WriteString("v=spf1")
	for _, m := range r.Mechanisms {
		b.WriteByte(' ')
		b.WriteString(m.String())
	}
	for _, mod := range r.Modifiers {
		b.WriteByte(' ')
		b.WriteString(mod.String())
	}
	return b.String()
}

// Compliance classifies the record against the lookup budget.
func (r *Record) Compliance() Compliance {
	switch {
	case len(r.Errors) > 0 || r.TotalLookups > LookupLimit:
		return ComplianceFail
	case r.TotalLookups >= lookupWarnThreshold:
		return ComplianceWarning
	default:
		return ComplianceOK
	}
}

// mechanismNames maps keyword text to mechanism types for classification.
var mechanismNames = map[string]MechanismType{
	"all":     MechAll,
	"include": MechInclude,
	"a":       MechA,
	"mx":      MechMX,
	"ptr":     MechPTR,
	"ip4":     MechIP4,
	"ip6":     MechIP6,
	"exists":  MechExists,
}

// Parse parses a raw SPF TXT string into a Record.
//
// Parsing is best-effort: a malformed token produces a ParseError on the
// record and parsing continues with the next token. A record whose first
// token is not "v=spf1" is marked invalid but still parsed so the caller
// can report everything wrong with it at once.
func Parse(raw string) *Record {
	r := &Record{
		Version: "spf1",
		Raw:     raw,
		Valid:   true,
	}

	tokens := strings.Fields(raw)

	start := 0
	if len(tokens) > 0 && strings.EqualFold(tokens[0], "v=spf1") {
		start = 1
	} else {
		r.Valid = false
		r.Errors = append(r.Errors, ParseError{
			Token:  first(tokens),
			Pos:    0,
			Reason: `record must start with "v=spf1"`,
		})
		// A misspelled version token ("v=spf2.0", "spf1") should not
		// additionally count as an unknown mechanism.
		if len(tokens) > 0 && strings.HasPrefix(strings.ToLower(tokens[0]), "v=") {
			start = 1
		}
	}

	for i := start; i < len(tokens); i++ {
		r.parseTerm(tokens[i], i)
	}

	for _, m := range r.Mechanisms {
		r.TotalLookups += m.Lookups
	}
	for _, m := range r.Modifiers {
		r.TotalLookups += m.Lookups
	}

	r.collectWarnings()
	return r
}

func first(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

// parseTerm classifies one whitespace-separated token as a mechanism or
// modifier and appends it to the record.
func (r *Record) parseTerm(token string, pos int) {
	rest := token
	qualifier := QualifierPass
	explicitQual := false

	if len(rest) > 0 {
		switch rest[0] {
		case '+', '-', '~', '?':
			qualifier = Qualifier(rest[0])
			explicitQual = true
			rest = rest[1:]
		}
	}

	if rest == "" {
		r.Errors = append(r.Errors, ParseError{token, pos, "qualifier without mechanism"})
		return
	}

	// Separate the keyword from its value. ":" introduces a domain or
	// address argument, "/" a bare CIDR suffix (a/24, mx/28).
	name := rest
	value := ""
	if idx := strings.IndexAny(rest, ":/"); idx >= 0 {
		name = rest[:idx]
		value = rest[idx:]
		if value[0] == ':' {
			value = value[1:]
		}
		// "a/24" keeps the leading slash so the dual-CIDR form
		// survives a round-trip.
	}

	if mt, ok := mechanismNames[strings.ToLower(name)]; ok && !strings.Contains(name, "=") {
		r.appendMechanism(mt, qualifier, value, token, pos)
		return
	}

	if !explicitQual && strings.Contains(rest, "=") {
		r.appendModifier(rest, token, pos)
		return
	}

	r.Errors = append(r.Errors, ParseError{token, pos, "unknown mechanism"})
}

func (r *Record) appendMechanism(mt MechanismType, q Qualifier, value, token string, pos int) {
	m := Mechanism{
		Type:      mt,
		Qualifier: q,
		Value:     value,
		Lookups:   lookupWeight[mt],
	}

	switch mt {
	case MechAll:
		if value != "" {
			r.Errors = append(r.Errors, ParseError{token, pos, `"all" takes no value`})
			return
		}

	case MechInclude, MechExists:
		if value == "" {
			r.Errors = append(r.Errors, ParseError{token, pos, fmt.Sprintf("%q requires a domain", mt)})
			return
		}

	case MechIP4:
		if !validIPValue(value, false) {
			r.Errors = append(r.Errors, ParseError{token, pos, "invalid IPv4 network"})
			return
		}

	case MechIP6:
		if !validIPValue(value, true) {
			r.Errors = append(r.Errors, ParseError{token, pos, "invalid IPv6 network"})
			return
		}
	}

	if strings.Contains(value, "%{") {
		ma := ParseMacros(value)
		m.HasMacros = true
		m.MacroCount = len(ma.Macros)
		for _, e := range ma.Errors {
			r.Errors = append(r.Errors, ParseError{token, pos, e})
		}
	}

	r.Mechanisms = append(r.Mechanisms, m)
}

func (r *Record) appendModifier(rest, token string, pos int) {
	name, value, _ := strings.Cut(rest, "=")
	if name == "" {
		r.Errors = append(r.Errors, ParseError{token, pos, "modifier without a name"})
		return
	}

	m := Modifier{
		Type:  ModUnknown,
		Name:  name,
		Value: value,
	}

	switch strings.ToLower(name) {
	case "redirect":
		m.Type = ModRedirect
		m.Lookups = 1
		if value == "" {
			r.Errors = append(r.Errors, ParseError{token, pos, "redirect requires a domain"})
			return
		}
	case "exp":
		// Explanation lookups happen only after a "fail" result and are
		// outside the RFC 7208 Section 4.6.4 budget.
		m.Type = ModExp
	}

	if strings.Contains(value, "%{") {
		ma := ParseMacros(value)
		m.HasMacros = true
		for _, e := range ma.Errors {
			r.Errors = append(r.Errors, ParseError{token, pos, e})
		}
	}

	r.Modifiers = append(r.Modifiers, m)
}

// validIPValue reports whether an ip4/ip6 argument is a literal address
// or CIDR network of the right family.
func validIPValue(value string, v6 bool) bool {
	if value == "" {
		return false
	}
	addr := value
	if strings.Contains(value, "/") {
		ip, _, err := net.ParseCIDR(value)
		if err != nil {
			return false
		}
		return (ip.To4() == nil) == v6
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	return (ip.To4() == nil) == v6
}

// collectWarnings flags legal but troublesome constructs: deprecated ptr,
// terms published after a matching "all", and redirect shadowed by "all".
func (r *Record) collectWarnings() {
	allIdx := -1
	for i, m := range r.Mechanisms {
		if m.Type == MechPTR {
			r.Warnings = append(r.Warnings,
				`"ptr" is deprecated (RFC 7208 Section 5.5) and slow to evaluate`)
		}
		if m.Type == MechAll && allIdx < 0 {
			allIdx = i
		}
	}

	if allIdx >= 0 && allIdx < len(r.Mechanisms)-1 {
		var dead []string
		for _, m := range r.Mechanisms[allIdx+1:] {
			dead = append(dead, m.String())
		}
		r.Warnings = append(r.Warnings, fmt.Sprintf(
			"mechanisms after %q are unreachable: %s",
			r.Mechanisms[allIdx].String(), strings.Join(dead, " ")))
	}

	if allIdx >= 0 {
		for _, mod := range r.Modifiers {
			if mod.Type == ModRedirect {
				r.Warnings = append(r.Warnings,
					`"redirect" is ignored when the record contains "all"; one of them is dead`)
			}
		}
	}
}
