package version

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	valid := []struct {
		input        string
		major, minor uint16
	}{
		{"1.0", 1, 0},
		{"1.1", 1, 1},
		{"10.23", 10, 23},
	}
	for _, tt := range valid {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v.Major != tt.major || v.Minor != tt.minor {
				t.Errorf("Parse(%q) = %d.%d, want %d.%d", tt.input, v.Major, v.Minor, tt.major, tt.minor)
			}
			if v.String() != tt.input {
				t.Errorf("String() = %q, want %q", v.String(), tt.input)
			}
		})
	}

	for _, input := range []string{"", "1", "abc", "1.0.0", "1.x", "-1.0", ".1"} {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) should return error", input)
		}
	}
}

func TestCompatible(t *testing.T) {
	v10, _ := Parse("1.0")
	v11, _ := Parse("1.1")
	v20, _ := Parse("2.0")

	if !v10.Compatible(v11) || !v11.Compatible(v10) {
		t.Error("1.0 and 1.1 should be compatible")
	}
	if v10.Compatible(v20) || v20.Compatible(v10) {
		t.Error("1.0 and 2.0 should not be compatible")
	}
}

func TestALPN(t *testing.T) {
	if got := ALPNProtocol(1); got != "svcmodel/1" {
		t.Errorf("ALPNProtocol(1) = %q, want %q", got, "svcmodel/1")
	}

	tests := []struct {
		input   string
		want    uint16
		wantErr bool
	}{
		{"svcmodel/1", 1, false},
		{"svcmodel/7", 7, false},
		{"http/1.1", 0, true},
		{"svcmodel/", 0, true},
		{"", 0, true},
		{"svcmodel/abc", 0, true},
	}
	for _, tt := range tests {
		got, err := MajorFromALPN(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("MajorFromALPN(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("MajorFromALPN(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}

	protos := SupportedALPNProtocols()
	if len(protos) != 1 || protos[0] != "svcmodel/1" {
		t.Errorf("SupportedALPNProtocols() = %v", protos)
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "svcmodel-go/") || !strings.HasSuffix(ua, Library) {
		t.Errorf("UserAgent() = %q", ua)
	}
	if _, err := Parse(Current); err != nil {
		t.Fatalf("Parse(Current) returned error: %v", err)
	}
}
