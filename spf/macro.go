package spf

import (
	"fmt"
	"strconv"
	"strings"
)

// Macro letters defined by RFC 7208 Section 7.2.
const macroLetters = "slodipvhcrt"

// Risk classifies how much trust a macro places in attacker-influenced
// or operationally fragile input.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// riskRank orders risks for max comparisons.
var riskRank = map[Risk]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}

// MaxRisk returns the higher of two risks.
func MaxRisk(a, b Risk) Risk {
	if riskRank[b] > riskRank[a] {
		return b
	}
	return a
}

// Complexity scoring weights. The score is a coarse review-priority
// signal, not a formal metric.
const (
	scoreMacro       = 10
	scoreTruncation  = 5
	scoreDelimiters  = 5
	scoreReverse     = 5
	scoreSensitive   = 15
	macrosPerValueOK = 5
)

// Macro is one parsed %{...} placeholder.
type Macro struct {
	// Raw is the full macro text including braces.
	Raw string

	// Letter is the macro letter, lower-cased.
	Letter byte

	// Digits is the label-truncation count, 0 when absent.
	Digits int

	// Reverse reports the "r" transformer.
	Reverse bool

	// Delimiters is the split character set, "." by default.
	Delimiters string
}

// String returns the raw macro text.
func (m Macro) String() string { return m.Raw }

// SecurityRisk classifies the macro letter.
//
// Letters expanding infrastructure the sender cannot unilaterally control
// (i, d, o, l) are low risk. "s" expands the attacker-controlled
// envelope-from and is directly spoofable. "p" both adds a PTR lookup to
// every evaluation and trusts forward-confirmed reverse DNS, which is
// weak. "c" and "t" leak client address and timing detail into DNS
// queries without being forgeable by an arbitrary sender.
func (m Macro) SecurityRisk() Risk {
	switch m.Letter {
	case 's', 'p':
		return RiskHigh
	case 'c', 't':
		return RiskMedium
	default:
		return RiskLow
	}
}

func (m Macro) sensitive() bool {
	switch m.Letter {
	case 's', 'p', 'c', 't':
		return true
	}
	return false
}

// RiskNote is one security finding attached to a macro.
type RiskNote struct {
	Macro  string
	Risk   Risk
	Reason string
}

// MacroAnalysis is the result of scanning a mechanism or modifier value
// for macros.
type MacroAnalysis struct {
	// Macros in order of appearance.
	Macros []Macro

	// ComplexityScore grows with macro count and transformer use.
	ComplexityScore int

	// SecurityRisks holds one note per macro at medium risk or above.
	SecurityRisks []RiskNote

	// PerformanceWarnings flag constructs that slow down evaluation.
	PerformanceWarnings []string

	// Errors holds macro syntax problems (unknown letter, missing brace).
	Errors []string
}

// MaxRisk returns the highest risk across all parsed macros, or RiskLow
// when the text contains no macros.
func (a *MacroAnalysis) MaxRisk() Risk {
	r := RiskLow
	for _, m := range a.Macros {
		r = MaxRisk(r, m.SecurityRisk())
	}
	return r
}

// ParseMacros scans text for the RFC 7208 macro grammar:
//
//	"%{" letter digits? "r"? delimiters? "}" | "%%" | "%_" | "%-"
//
// Literal text between macros is ignored. Malformed macros are recorded
// in Errors and scanning continues, mirroring the record parser's
// non-aborting policy.
func ParseMacros(text string) *MacroAnalysis {
	a := &MacroAnalysis{}

	for i := 0; i < len(text); {
		if text[i] != '%' {
			i++
			continue
		}
		if i+1 >= len(text) {
			a.Errors = append(a.Errors, "trailing % at end of value")
			break
		}

		switch text[i+1] {
		case '%', '_', '-':
			// Escapes, not macros.
			i += 2
			continue
		case '{':
			// Macro proper, handled below.
		default:
			a.Errors = append(a.Errors, fmt.Sprintf("invalid macro escape %%%c", text[i+1]))
			i += 2
			continue
		}

		end := strings.IndexByte(text[i:], '}')
		if end < 0 {
			a.Errors = append(a.Errors, "macro missing closing }")
			break
		}
		raw := text[i : i+end+1]
		body := raw[2 : len(raw)-1]
		i += end + 1

		m, err := parseMacroBody(raw, body)
		if err != "" {
			a.Errors = append(a.Errors, err)
			continue
		}
		a.Macros = append(a.Macros, m)

		a.ComplexityScore += scoreMacro
		if m.Digits > 0 {
			a.ComplexityScore += scoreTruncation
		}
		if m.Delimiters != "." {
			a.ComplexityScore += scoreDelimiters
		}
		if m.Reverse {
			a.ComplexityScore += scoreReverse
		}
		if m.sensitive() {
			a.ComplexityScore += scoreSensitive
		}

		if risk := m.SecurityRisk(); risk != RiskLow {
			a.SecurityRisks = append(a.SecurityRisks, RiskNote{
				Macro:  m.Raw,
				Risk:   risk,
				Reason: riskReason(m.Letter),
			})
		}
	}

	a.collectPerformanceWarnings()
	return a
}

// parseMacroBody parses the inside of %{...}. It returns a description
// of the syntax error instead of a Macro when the body is malformed.
func parseMacroBody(raw, body string) (Macro, string) {
	m := Macro{Raw: raw, Delimiters: "."}

	if body == "" {
		return m, "empty macro"
	}

	letter := body[0]
	if letter >= 'A' && letter <= 'Z' {
		letter += 'a' - 'A'
	}
	if !strings.ContainsRune(macroLetters, rune(letter)) {
		return m, fmt.Sprintf("unknown macro letter %q in %s", string(body[0]), raw)
	}
	m.Letter = letter
	rest := body[1:]

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		n, err := strconv.Atoi(rest[:digits])
		if err != nil || n == 0 {
			return m, fmt.Sprintf("invalid label count in %s", raw)
		}
		m.Digits = n
		rest = rest[digits:]
	}

	if len(rest) > 0 && (rest[0] == 'r' || rest[0] == 'R') {
		m.Reverse = true
		rest = rest[1:]
	}

	if len(rest) > 0 {
		for _, c := range rest {
			switch c {
			case '.', '-', '+', ',', '/', '_', '=':
			default:
				return m, fmt.Sprintf("invalid delimiter %q in %s", string(c), raw)
			}
		}
		m.Delimiters = rest
	}

	return m, ""
}

func riskReason(letter byte) string {
	switch letter {
	case 's':
		return "expands the attacker-controlled envelope-from address"
	case 'p':
		return "adds a PTR lookup and trusts forward-confirmed reverse DNS"
	case 'c':
		return "leaks the connecting client address into DNS queries"
	case 't':
		return "leaks evaluation timing into DNS queries"
	}
	return ""
}

func (a *MacroAnalysis) collectPerformanceWarnings() {
	if len(a.Macros) > macrosPerValueOK {
		a.PerformanceWarnings = append(a.PerformanceWarnings, fmt.Sprintf(
			"%d macros in a single value; each expansion runs on every evaluation", len(a.Macros)))
	}
	for _, m := range a.Macros {
		if m.Letter == 'p' {
			a.PerformanceWarnings = append(a.PerformanceWarnings,
				`"p" macro forces a PTR lookup plus validation on every evaluation`)
		}
		if m.Digits > 0 && m.Delimiters != "." && longField(m.Letter) {
			a.PerformanceWarnings = append(a.PerformanceWarnings, fmt.Sprintf(
				"%s combines truncation with custom delimiters on a long field", m.Raw))
		}
	}
}

// longField reports letters whose expansion is unbounded free-form text
// (sender address parts, HELO names) rather than a fixed-size token.
func longField(letter byte) bool {
	switch letter {
	case 's', 'l', 'h':
		return true
	}
	return false
}
