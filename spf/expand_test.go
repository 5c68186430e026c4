package spf

import (
	"errors"
	"testing"
)

func testContext() *ExpandContext {
	return &ExpandContext{
		Sender:         "strong-bad@email.example.com",
		LocalPart:      "strong-bad",
		SenderDomain:   "email.example.com",
		CurrentDomain:  "email.example.com",
		SenderIP:       "192.0.2.3",
		HELODomain:     "mx.example.org",
		ReceiverDomain: "mail.example.net",
	}
}

func TestExpand(t *testing.T) {
	// The worked examples from RFC 7208 Section 7.4.
	tests := []struct {
		name  string
		macro string
		ctx   *ExpandContext
		want  string
	}{
		{"sender", "%{s}", testContext(), "strong-bad@email.example.com"},
		{"sender domain", "%{o}", testContext(), "email.example.com"},
		{"current domain", "%{d}", testContext(), "email.example.com"},
		{"truncate to four", "%{d4}", testContext(), "email.example.com"},
		{"truncate to one", "%{d1}", testContext(), "com"},
		{"reverse ip", "%{ir}", testContext(), "3.2.0.192"},
		{"local part split on dash", "%{l-}", testContext(), "strong.bad"},
		{"local part reversed on dash", "%{lr-}", testContext(), "bad.strong"},
		{"reverse truncate", "%{l1r-}", testContext(), "strong"},
		{"version marker v4", "%{v}", testContext(), "in-addr"},
		{
			name:  "version marker v6",
			macro: "%{v}",
			ctx:   &ExpandContext{SenderIP: "2001:db8::1"},
			want:  "ip6",
		},
		{
			name:  "registrable suffix",
			macro: "%{d2}",
			ctx:   &ExpandContext{CurrentDomain: "mail.example.co.uk"},
			want:  "co.uk",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ParseMacros(tt.macro)
			if len(a.Macros) != 1 {
				t.Fatalf("ParseMacros(%q): expected 1 macro, got %v (errors %v)", tt.macro, a.Macros, a.Errors)
			}
			got, err := Expand(a.Macros[0], tt.ctx)
			if err != nil {
				t.Fatalf("Expand(%q): %v", tt.macro, err)
			}
			if got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.macro, got, tt.want)
			}
		})
	}
}

func TestExpandMissingContext(t *testing.T) {
	tests := []struct {
		name  string
		macro string
	}{
		{"sender unset", "%{s}"},
		{"validated ptr unset", "%{p}"},
		{"client hex unset", "%{c}"},
		{"timestamp unset", "%{t}"},
		{"version needs ip", "%{v}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ParseMacros(tt.macro)
			if len(a.Macros) != 1 {
				t.Fatalf("expected 1 macro, got %v", a.Errors)
			}
			_, err := Expand(a.Macros[0], &ExpandContext{})
			if !errors.Is(err, ErrMacro) {
				t.Errorf("expected ErrMacro for empty context, got %v", err)
			}
		})
	}
}

func TestExpandAll(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "mixed literal and macros",
			input: "%{ir}.%{v}._spf.%{d2}",
			want:  "3.2.0.192.in-addr._spf.example.com",
		},
		{
			name:  "escapes",
			input: "%%-%_-%-",
			want:  "%- -%20",
		},
		{
			name:  "no macros passes through",
			input: "_spf.example.com",
			want:  "_spf.example.com",
		},
		{
			name:    "one bad macro fails the whole call",
			input:   "good.%{d}.bad.%{z}",
			wantErr: true,
		},
		{
			name:    "trailing percent",
			input:   "%{d}%",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandAll(tt.input, testContext())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				if got != "" {
					t.Errorf("partial output %q returned with error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExpandAll(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ExpandAll(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTestExpansion(t *testing.T) {
	expanded, risk, err := TestExpansion("%{i}._spf.%{d}", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if expanded != "192.0.2.3._spf.email.example.com" {
		t.Errorf("expanded = %q", expanded)
	}
	if risk != RiskLow {
		t.Errorf("risk = %q, want low", risk)
	}

	_, risk, err = TestExpansion("%{s}", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if risk != RiskHigh {
		t.Errorf("risk = %q, want high", risk)
	}

	if _, _, err := TestExpansion("%{z}", testContext()); err == nil {
		t.Error("expected syntax error to surface")
	}
}
