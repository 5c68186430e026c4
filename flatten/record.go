package flatten

import (
	"fmt"
	"strings"
)

// maxTXTLength is the largest single TXT character string; flattened
// records beyond it must be split into chained includes.
const maxTXTLength = 255

// FlatRecord renders the resolved IP set as a publishable SPF record,
// terminated with the given all directive (e.g. "~all", "-all").
func (r *DomainResult) FlatRecord(terminal string) string {
	var b strings.Builder
	b.WriteString("v=spf1")
	for _, ip := range r.IPs {
		b.WriteByte(' ')
		b.WriteString(ipToken(ip))
	}
	if terminal != "" {
		b.WriteByte(' ')
		b.WriteString(terminal)
	}
	return b.String()
}

// ipToken prefixes a literal network with the right mechanism keyword.
func ipToken(ip string) string {
	if strings.Contains(ip, ":") {
		return "ip6:" + ip
	}
	return "ip4:" + ip
}

// SplitChained splits a flattened record that exceeds the 255-character
// TXT limit into a chain of spfN.<domain> records, each ending in an
// include of the next link. The returned map holds one TXT value per
// record name; the entry for domain itself points at the head of the
// chain. Records that already fit are returned unchanged.
func SplitChained(record, domain string) map[string]string {
	if len(record) <= maxTXTLength {
		return map[string]string{domain: record}
	}

	terminal := "~all"
	for _, t := range []string{" ~all", " -all", " ?all", " all"} {
		if strings.HasSuffix(record, t) {
			terminal = strings.TrimSpace(t)
			record = strings.TrimSuffix(record, t)
			break
		}
	}

	tokens := strings.Fields(record)
	if len(tokens) == 0 {
		return map[string]string{domain: record}
	}

	// Worst-case room reserved for the chain link and terminal on each
	// segment; computed up front so segment boundaries are stable.
	reserved := len(fmt.Sprintf(" include:spf99.%s %s", domain, terminal))

	var segments [][]string
	current := []string{"v=spf1"}
	length := len("v=spf1")

	for _, tok := range tokens[1:] {
		if length+1+len(tok)+reserved > maxTXTLength {
			segments = append(segments, current)
			current = []string{"v=spf1"}
			length = len("v=spf1")
		}
		current = append(current, tok)
		length += 1 + len(tok)
	}
	segments = append(segments, current)

	out := make(map[string]string, len(segments)+1)
	for i, seg := range segments {
		suffix := " " + terminal
		if i < len(segments)-1 {
			suffix = fmt.Sprintf(" include:spf%d.%s %s", i+1, domain, terminal)
		}
		out[fmt.Sprintf("spf%d.%s", i, domain)] = strings.Join(seg, " ") + suffix
	}
	out[domain] = fmt.Sprintf("v=spf1 include:spf0.%s %s", domain, terminal)
	return out
}
