package flatten

import (
	"strconv"
	"strings"
	"testing"

	"github.com/synqronlabs/kestrel/spf"
)

func TestFlatRecord(t *testing.T) {
	tests := []struct {
		name     string
		ips      []string
		terminal string
		want     string
	}{
		{
			name:     "mixed families",
			ips:      []string{"192.0.2.0/24", "198.51.100.7", "2001:db8::/32"},
			terminal: "~all",
			want:     "v=spf1 ip4:192.0.2.0/24 ip4:198.51.100.7 ip6:2001:db8::/32 ~all",
		},
		{
			name:     "empty set",
			ips:      nil,
			terminal: "-all",
			want:     "v=spf1 -all",
		},
		{
			name: "no terminal",
			ips:  []string{"192.0.2.1"},
			want: "v=spf1 ip4:192.0.2.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &DomainResult{IPs: tt.ips}
			if got := r.FlatRecord(tt.terminal); got != tt.want {
				t.Errorf("FlatRecord() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitChainedShortRecordUnchanged(t *testing.T) {
	record := "v=spf1 ip4:192.0.2.0/24 ~all"
	got := SplitChained(record, "example.com")
	if len(got) != 1 || got["example.com"] != record {
		t.Errorf("short record must pass through, got %v", got)
	}
}

func TestSplitChainedLongRecord(t *testing.T) {
	r := &DomainResult{}
	for a := 1; a <= 40; a++ {
		r.IPs = append(r.IPs, "203.0.113."+strconv.Itoa(a))
	}
	record := r.FlatRecord("-all")
	if len(record) <= maxTXTLength {
		t.Fatalf("test record too short (%d chars)", len(record))
	}

	got := SplitChained(record, "example.com")

	head, ok := got["example.com"]
	if !ok {
		t.Fatal("missing head record")
	}
	if head != "v=spf1 include:spf0.example.com -all" {
		t.Errorf("head = %q", head)
	}

	var ips int
	for name, value := range got {
		if len(value) > maxTXTLength {
			t.Errorf("%s is %d chars, over the TXT limit", name, len(value))
		}
		parsed := spf.Parse(value)
		if !parsed.Valid || len(parsed.Errors) > 0 {
			t.Errorf("%s does not parse cleanly: %v", name, parsed.Errors)
		}
		for _, m := range parsed.Mechanisms {
			if m.Type == spf.MechIP4 {
				ips++
			}
		}
		if !strings.HasSuffix(value, "-all") {
			t.Errorf("%s missing terminal: %q", name, value)
		}
	}
	if ips != 40 {
		t.Errorf("chain carries %d addresses, want 40", ips)
	}
}
