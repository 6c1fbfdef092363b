package version

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in                  string
		major, minor, patch int
		ok                  bool
	}{
		{"1.2.3", 1, 2, 3, true},
		{"v0.10.0", 0, 10, 0, true},
		{"2.0.1-rc1", 2, 0, 1, true},
		{"dev", 0, 0, 0, false},
		{"1.2", 0, 0, 0, false},
		{"1.-2.3", 0, 0, 0, false},
	}
	for _, c := range cases {
		major, minor, patch, ok := Parse(c.in)
		if ok != c.ok || major != c.major || minor != c.minor || patch != c.patch {
			t.Fatalf("Parse(%q)=%d.%d.%d,%v want %d.%d.%d,%v", c.in, major, minor, patch, ok, c.major, c.minor, c.patch, c.ok)
		}
	}
}

func TestNumeric(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "1.2.3"
	if got := Numeric(); got != 0x010203 {
		t.Fatalf("Numeric()=%#x want 0x010203", got)
	}
	Version = "1.300.0"
	if got := Numeric(); got != 0x01ff00 {
		t.Fatalf("Numeric()=%#x want 0x01ff00", got)
	}
	Version = "dev"
	if got := Numeric(); got != 0 {
		t.Fatalf("Numeric()=%#x want 0", got)
	}
}
