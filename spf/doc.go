// Package spf implements parsing and static analysis of Sender Policy
// Framework (SPF) DNS records according to RFC 7208.
//
// Unlike SMTP-time SPF verifiers, this package never renders a policy
// decision for a live sender IP. It dissects published records so that a
// domain owner can audit and repair them before they break mail delivery:
//
//   - Full record parsing into mechanisms and modifiers, with per-token
//     error recovery (one malformed token never aborts the record)
//   - DNS lookup budgeting against the RFC 7208 limit of 10 querying terms
//   - Macro parsing, security classification and expansion against a
//     caller-supplied context
//
// Basic usage:
//
//	record := spf.Parse("v=spf1 include:_spf.example.net mx -all")
//	if !record.Valid {
//	    // Not an SPF record (missing v=spf1)
//	}
//	fmt.Println(record.TotalLookups, record.Compliance())
//
// Lookup budgets can be recomputed without re-parsing:
//
//	bd := spf.ComputeBreakdown(record)
//	fmt.Println(bd.Include, bd.MX, bd.Status)
//
// Macro analysis:
//
//	ma := spf.ParseMacros("%{i}._spf.%{d}")
//	fmt.Println(ma.ComplexityScore, ma.MaxRisk())
//
// References:
//   - RFC 7208: Sender Policy Framework (SPF)
package spf
