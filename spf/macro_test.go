package spf

import (
	"strings"
	"testing"
)

func TestParseMacros(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		checkFunc func(t *testing.T, a *MacroAnalysis)
	}{
		{
			name:  "single sender macro",
			input: "%{s}",
			checkFunc: func(t *testing.T, a *MacroAnalysis) {
				if len(a.Macros) != 1 {
					t.Fatalf("expected 1 macro, got %d", len(a.Macros))
				}
				m := a.Macros[0]
				if m.Letter != 's' || m.Digits != 0 || m.Reverse || m.Delimiters != "." {
					t.Errorf("unexpected macro %+v", m)
				}
				if r := m.SecurityRisk(); r != RiskHigh {
					t.Errorf("SecurityRisk() = %q, want at least medium", r)
				}
			},
		},
		{
			name:  "full transformer chain",
			input: "%{i4r.-}",
			checkFunc: func(t *testing.T, a *MacroAnalysis) {
				if len(a.Macros) != 1 {
					t.Fatalf("expected 1 macro, got %d: %v", len(a.Macros), a.Errors)
				}
				m := a.Macros[0]
				if m.Letter != 'i' || m.Digits != 4 || !m.Reverse || m.Delimiters != ".-" {
					t.Errorf("unexpected macro %+v", m)
				}
			},
		},
		{
			name:  "uppercase letter accepted",
			input: "%{D}",
			checkFunc: func(t *testing.T, a *MacroAnalysis) {
				if len(a.Macros) != 1 || a.Macros[0].Letter != 'd' {
					t.Errorf("expected lower-cased d macro, got %+v (errors %v)", a.Macros, a.Errors)
				}
			},
		},
		{
			name:  "multiple macros with literal text",
			input: "%{i}._spf.%{d}.example.com",
			checkFunc: func(t *testing.T, a *MacroAnalysis) {
				if len(a.Macros) != 2 {
					t.Fatalf("expected 2 macros, got %d", len(a.Macros))
				}
				if a.Macros[0].Letter != 'i' || a.Macros[1].Letter != 'd' {
					t.Errorf("unexpected letters %c %c", a.Macros[0].Letter, a.Macros[1].Letter)
				}
			},
		},
		{
			name:  "escapes are not macros",
			input: "%%%_%-",
			checkFunc: func(t *testing.T, a *MacroAnalysis) {
				if len(a.Macros) != 0 || len(a.Errors) != 0 {
					t.Errorf("escapes should parse clean, got macros %v errors %v", a.Macros, a.Errors)
				}
			},
		},
		{
			name:  "unknown letter recorded",
			input: "%{z}",
			checkFunc: func(t *testing.T, a *MacroAnalysis) {
				if len(a.Errors) != 1 {
					t.Fatalf("expected 1 error, got %v", a.Errors)
				}
				if len(a.Macros) != 0 {
					t.Errorf("malformed macro must not be kept")
				}
			},
		},
		{
			name:  "missing closing brace",
			input: "%{d.example.com",
			checkFunc: func(t *testing.T, a *MacroAnalysis) {
				if len(a.Errors) != 1 {
					t.Errorf("expected 1 error, got %v", a.Errors)
				}
			},
		},
		{
			name:  "zero label count rejected",
			input: "%{d0}",
			checkFunc: func(t *testing.T, a *MacroAnalysis) {
				if len(a.Errors) != 1 {
					t.Errorf("expected 1 error, got %v", a.Errors)
				}
			},
		},
		{
			name:  "invalid delimiter rejected",
			input: "%{d2*}",
			checkFunc: func(t *testing.T, a *MacroAnalysis) {
				if len(a.Errors) != 1 {
					t.Errorf("expected 1 error, got %v", a.Errors)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.checkFunc(t, ParseMacros(tt.input))
		})
	}
}

func TestMacroSecurityRisk(t *testing.T) {
	tests := []struct {
		letter byte
		want   Risk
	}{
		{'s', RiskHigh},
		{'p', RiskHigh},
		{'c', RiskMedium},
		{'t', RiskMedium},
		{'i', RiskLow},
		{'d', RiskLow},
		{'o', RiskLow},
		{'l', RiskLow},
	}

	for _, tt := range tests {
		m := Macro{Letter: tt.letter}
		if got := m.SecurityRisk(); got != tt.want {
			t.Errorf("SecurityRisk(%c) = %q, want %q", tt.letter, got, tt.want)
		}
	}

	// Risk notes are emitted for everything above low.
	a := ParseMacros("%{s}.%{c}.%{i}")
	if len(a.SecurityRisks) != 2 {
		t.Errorf("expected 2 risk notes, got %v", a.SecurityRisks)
	}
	if a.MaxRisk() != RiskHigh {
		t.Errorf("MaxRisk() = %q, want high", a.MaxRisk())
	}
}

func TestMacroComplexityScore(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"no macros here", 0},
		{"%{i}", scoreMacro},
		{"%{i4}", scoreMacro + scoreTruncation},
		{"%{ir}", scoreMacro + scoreReverse},
		{"%{i-}", scoreMacro + scoreDelimiters},
		{"%{s}", scoreMacro + scoreSensitive},
		{"%{i4r-}", scoreMacro + scoreTruncation + scoreReverse + scoreDelimiters},
	}

	for _, tt := range tests {
		if got := ParseMacros(tt.input).ComplexityScore; got != tt.want {
			t.Errorf("ComplexityScore(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestMacroPerformanceWarnings(t *testing.T) {
	t.Run("many macros", func(t *testing.T) {
		a := ParseMacros("%{i}.%{d}.%{o}.%{h}.%{r}.%{v}")
		if len(a.PerformanceWarnings) == 0 {
			t.Error("expected a macro-count warning")
		}
	})

	t.Run("ptr macro", func(t *testing.T) {
		a := ParseMacros("%{p}")
		found := false
		for _, w := range a.PerformanceWarnings {
			if strings.Contains(w, "PTR") {
				found = true
			}
		}
		if !found {
			t.Errorf("expected a PTR warning, got %v", a.PerformanceWarnings)
		}
	})

	t.Run("truncated long field with custom delimiters", func(t *testing.T) {
		a := ParseMacros("%{s2-}")
		if len(a.PerformanceWarnings) == 0 {
			t.Error("expected a truncation warning")
		}
	})
}
