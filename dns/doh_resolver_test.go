package dns

import "testing"

func TestNormalizeTXTData(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unquoted", "v=spf1 -all", "v=spf1 -all"},
		{"quoted", `"v=spf1 -all"`, "v=spf1 -all"},
		{"multi-part", `"v=spf1 include:a.com " "include:b.com -all"`, "v=spf1 include:a.com include:b.com -all"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeTXTData(tt.in); got != tt.want {
				t.Errorf("normalizeTXTData(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeMXData(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    MX
		wantErr bool
	}{
		{"with trailing dot", "10 mail.example.com.", MX{Priority: 10, Exchange: "mail.example.com"}, false},
		{"without trailing dot", "20 mx.example.org", MX{Priority: 20, Exchange: "mx.example.org"}, false},
		{"null mx", "0 .", MX{Priority: 0, Exchange: ""}, false},
		{"missing preference", "mail.example.com", MX{}, true},
		{"bad preference", "ten mail.example.com.", MX{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeMXData(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("normalizeMXData(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}
