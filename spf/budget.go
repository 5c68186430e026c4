package spf

// Breakdown groups a record's static DNS cost by term category. It lets
// callers re-check the budget after editing a record without re-parsing
// the original text.
type Breakdown struct {
	// Per-category counts of lookup-consuming terms.
	Include  int
	A        int
	MX       int
	PTR      int
	Exists   int
	Redirect int

	// Total is the summed static DNS cost.
	Total int

	// Status is the three-way budget classification.
	Status Compliance
}

// ComputeBreakdown derives the lookup breakdown and compliance status
// from a parsed record. ip4, ip6, all and exp contribute nothing; the
// exp exclusion follows RFC 7208 Section 6.2, which keeps explanation
// lookups outside the evaluation budget.
func ComputeBreakdown(r *Record) *Breakdown {
	b := &Breakdown{}

	for _, m := range r.Mechanisms {
		switch m.Type {
		case MechInclude:
			b.Include++
		case MechA:
			b.A++
		case MechMX:
			b.MX++
		case MechPTR:
			b.PTR++
		case MechExists:
			b.Exists++
		}
		b.Total += m.Lookups
	}

	for _, m := range r.Modifiers {
		if m.Type == ModRedirect {
			b.Redirect++
		}
		b.Total += m.Lookups
	}

	switch {
	case len(r.Errors) > 0 || b.Total > LookupLimit:
		b.Status = ComplianceFail
	case b.Total >= lookupWarnThreshold:
		b.Status = ComplianceWarning
	default:
		b.Status = ComplianceOK
	}

	return b
}
