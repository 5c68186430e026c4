package spf

import "testing"

func TestComputeBreakdown(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		checkFunc func(t *testing.T, b *Breakdown)
	}{
		{
			name:  "mixed categories",
			input: "v=spf1 include:a.com include:b.com a mx:mail.example.com ptr exists:%{i}.x.com ip4:192.0.2.1 -all redirect=_spf.example.com",
			checkFunc: func(t *testing.T, b *Breakdown) {
				if b.Include != 2 || b.A != 1 || b.MX != 1 || b.PTR != 1 || b.Exists != 1 || b.Redirect != 1 {
					t.Errorf("unexpected counts %+v", b)
				}
				if b.Total != 7 {
					t.Errorf("Total = %d, want 7", b.Total)
				}
				if b.Status != ComplianceOK {
					t.Errorf("Status = %q, want %q", b.Status, ComplianceOK)
				}
			},
		},
		{
			name:  "free terms contribute nothing",
			input: "v=spf1 ip4:192.0.2.0/24 ip6:2001:db8::/32 -all exp=why.example.com",
			checkFunc: func(t *testing.T, b *Breakdown) {
				if b.Total != 0 {
					t.Errorf("Total = %d, want 0", b.Total)
				}
				if b.Status != ComplianceOK {
					t.Errorf("Status = %q, want %q", b.Status, ComplianceOK)
				}
			},
		},
		{
			name:  "eight lookups warn",
			input: "v=spf1 include:a.com include:b.com include:c.com include:d.com include:e.com include:f.com include:g.com include:h.com -all",
			checkFunc: func(t *testing.T, b *Breakdown) {
				if b.Total != 8 {
					t.Errorf("Total = %d, want 8", b.Total)
				}
				if b.Status != ComplianceWarning {
					t.Errorf("Status = %q, want %q", b.Status, ComplianceWarning)
				}
			},
		},
		{
			name:  "eleven lookups fail",
			input: "v=spf1 include:a.com include:b.com include:c.com include:d.com include:e.com include:f.com include:g.com include:h.com include:i.com include:j.com include:k.com -all",
			checkFunc: func(t *testing.T, b *Breakdown) {
				if b.Total != 11 {
					t.Errorf("Total = %d, want 11", b.Total)
				}
				if b.Status != ComplianceFail {
					t.Errorf("Status = %q, want %q", b.Status, ComplianceFail)
				}
			},
		},
		{
			name:  "parse errors fail regardless of count",
			input: "v=spf1 bogus -all",
			checkFunc: func(t *testing.T, b *Breakdown) {
				if b.Status != ComplianceFail {
					t.Errorf("Status = %q, want %q", b.Status, ComplianceFail)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.checkFunc(t, ComputeBreakdown(Parse(tt.input)))
		})
	}
}
