package iprewriter

import "testing"

func TestIPv4String(t *testing.T) {
	ip := IPv4{192, 168, 1, 1}
	if got, want := ip.String(), "192.168.1.1"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestIPv4Equal(t *testing.T) {
	a := IPv4{10, 0, 0, 1}
	b := IPv4{10, 0, 0, 1}
	c := IPv4{10, 0, 0, 2}

	if !a.Equal(b) {
		t.Error("expected a.Equal(b)")
	}
	if a.Equal(c) {
		t.Error("expected !a.Equal(c)")
	}
}

func TestIPv4IsZero(t *testing.T) {
	if !(IPv4{}).IsZero() {
		t.Error("zero value should report IsZero")
	}
	if (IPv4{0, 0, 0, 1}).IsZero() {
		t.Error("non-zero address should not report IsZero")
	}
}

func TestParseIPv4(t *testing.T) {
	tests := []struct {
		in      string
		want    IPv4
		wantErr bool
	}{
		{"192.168.1.1", IPv4{192, 168, 1, 1}, false},
		{"0.0.0.0", IPv4{}, false},
		{"255.255.255.255", IPv4{255, 255, 255, 255}, false},
		{"not-an-ip", IPv4{}, true},
		{"2001:db8::1", IPv4{}, true},
	}

	for _, tt := range tests {
		got, err := ParseIPv4(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseIPv4(%q): expected error, got none", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseIPv4(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseIPv4(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
