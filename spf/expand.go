package spf

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrMacro is the base error for macro expansion failures.
var ErrMacro = errors.New("spf: macro error")

// ExpandContext supplies the session values macros expand to. Fields
// left empty cause an error for the letters that need them; expansion
// never substitutes a silent empty string.
type ExpandContext struct {
	// Sender is the full envelope-from address, for %{s}.
	Sender string

	// LocalPart is the envelope-from local part, for %{l}.
	LocalPart string

	// SenderDomain is the envelope-from domain, for %{o}.
	SenderDomain string

	// CurrentDomain is the domain whose record is being evaluated, for %{d}.
	CurrentDomain string

	// SenderIP is the sending host address in text form, for %{i}.
	SenderIP string

	// ValidatedPTR is the forward-confirmed PTR domain, for %{p}.
	ValidatedPTR string

	// HELODomain is the EHLO/HELO identity, for %{h}.
	HELODomain string

	// ClientIPHex is the connecting client address in hex, for %{c}.
	ClientIPHex string

	// ReceiverDomain is the receiving server's name, for %{r}.
	ReceiverDomain string

	// Timestamp is the evaluation time as a Unix timestamp, for %{t}.
	Timestamp int64
}

// field selects the context value for a macro letter. The "v" marker is
// derived from SenderIP rather than supplied directly.
func (c *ExpandContext) field(letter byte) (string, error) {
	var v string
	switch letter {
	case 's':
		v = c.Sender
	case 'l':
		v = c.LocalPart
	case 'o':
		v = c.SenderDomain
	case 'd':
		v = c.CurrentDomain
	case 'i':
		v = c.SenderIP
	case 'p':
		v = c.ValidatedPTR
	case 'v':
		if c.SenderIP == "" {
			return "", fmt.Errorf("%w: %%{v} needs SenderIP in context", ErrMacro)
		}
		ip := net.ParseIP(c.SenderIP)
		if ip != nil && ip.To4() == nil {
			return "ip6", nil
		}
		return "in-addr", nil
	case 'h':
		v = c.HELODomain
	case 'c':
		v = c.ClientIPHex
	case 'r':
		v = c.ReceiverDomain
	case 't':
		if c.Timestamp == 0 {
			return "", fmt.Errorf("%w: %%{t} needs Timestamp in context", ErrMacro)
		}
		return strconv.FormatInt(c.Timestamp, 10), nil
	default:
		return "", fmt.Errorf("%w: unknown letter %q", ErrMacro, string(letter))
	}

	if v == "" {
		return "", fmt.Errorf("%w: no context value for %%{%s}", ErrMacro, string(letter))
	}
	return v, nil
}

// Expand expands a single macro against the context: select the field,
// split into labels by the delimiter set, optionally reverse, keep the
// trailing N labels after any reversal, and rejoin with ".".
func Expand(m Macro, ctx *ExpandContext) (string, error) {
	v, err := ctx.field(m.Letter)
	if err != nil {
		return "", err
	}

	labels := splitAny(v, m.Delimiters)
	if m.Reverse {
		reverse(labels)
	}
	if m.Digits > 0 && m.Digits < len(labels) {
		labels = labels[len(labels)-m.Digits:]
	}
	return strings.Join(labels, "."), nil
}

// ExpandAll replaces every macro and escape in text left to right. Any
// macro that cannot be expanded fails the whole call; partial output is
// never returned.
func ExpandAll(text string, ctx *ExpandContext) (string, error) {
	var b strings.Builder

	for i := 0; i < len(text); {
		if text[i] != '%' {
			b.WriteByte(text[i])
			i++
			continue
		}
		if i+1 >= len(text) {
			return "", fmt.Errorf("%w: trailing %% in %q", ErrMacro, text)
		}

		switch text[i+1] {
		case '%':
			b.WriteByte('%')
			i += 2
			continue
		case '_':
			b.WriteByte(' ')
			i += 2
			continue
		case '-':
			b.WriteString("%20")
			i += 2
			continue
		case '{':
		default:
			return "", fmt.Errorf("%w: invalid escape %%%c", ErrMacro, text[i+1])
		}

		end := strings.IndexByte(text[i:], '}')
		if end < 0 {
			return "", fmt.Errorf("%w: missing closing } in %q", ErrMacro, text)
		}
		raw := text[i : i+end+1]
		m, perr := parseMacroBody(raw, raw[2:len(raw)-1])
		if perr != "" {
			return "", fmt.Errorf("%w: %s", ErrMacro, perr)
		}

		v, err := Expand(m, ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(v)
		i += end + 1
	}

	return b.String(), nil
}

// TestExpansion parses and expands text in one step, reporting the
// expanded value together with the highest security risk across the
// matched macros. Intended for interactive "what would this do" views.
func TestExpansion(text string, ctx *ExpandContext) (expanded string, risk Risk, err error) {
	a := ParseMacros(text)
	if len(a.Errors) > 0 {
		return "", a.MaxRisk(), fmt.Errorf("%w: %s", ErrMacro, strings.Join(a.Errors, "; "))
	}

	expanded, err = ExpandAll(text, ctx)
	return expanded, a.MaxRisk(), err
}

// splitAny splits s at every character contained in delims. Empty
// labels are preserved; RFC 7208 transformers operate on positions, not
// content.
func splitAny(s, delims string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if strings.ContainsRune(delims, r) {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
