package hexpath

import "testing"

func TestBytesToPath(t *testing.T) {
	p := BytesToPath([]byte{0xAB, 0x01})
	want := Path{0xA, 0xB, 0x0, 0x1}
	if !Equal(p, want) {
		t.Fatalf("BytesToPath mismatch: got=%v want=%v", p, want)
	}
}

func TestBytesToPathAccountLength(t *testing.T) {
	acct := make([]byte, 32)
	p := BytesToPath(acct)
	if len(p) != 64 {
		t.Fatalf("account path length = %d, want 64", len(p))
	}
}

func TestIsPrefix(t *testing.T) {
	full := BytesToPath([]byte("ab"))
	if !IsPrefix(full[:2], full) {
		t.Fatalf("expected prefix match")
	}
	if IsPrefix(full, full[:2]) {
		t.Fatalf("longer path must not be a prefix of a shorter one")
	}
	if !IsPrefix(Path{}, full) {
		t.Fatalf("empty path is a prefix of everything")
	}
}

func TestIsPostfix(t *testing.T) {
	full := BytesToPath([]byte("ab"))
	suffix := full[2:]
	if !IsPostfix(suffix, full) {
		t.Fatalf("expected postfix match")
	}
	if IsPostfix(full, suffix) {
		t.Fatalf("longer path must not be a postfix of a shorter one")
	}
}

func TestLongestPrefixLength(t *testing.T) {
	a := BytesToPath([]byte("ab"))
	b := BytesToPath([]byte("ac"))
	// "a" -> nibbles 6,1 ; "b" -> 6,2 ; "c" -> 6,3
	// a = [6,1,6,2], b = [6,1,6,3]: LCP should be 3
	if got := LongestPrefixLength(a, b); got != 3 {
		t.Fatalf("LongestPrefixLength = %d, want 3", got)
	}
}

func TestConcatDoesNotAliasInput(t *testing.T) {
	base := Path{0x1, 0x2}
	out := Concat(base, 0x3, Path{0x4, 0x5})
	if !Equal(out, Path{0x1, 0x2, 0x3, 0x4, 0x5}) {
		t.Fatalf("Concat mismatch: got=%v", out)
	}
	base[0] = 0xF
	if out[0] != 0x1 {
		t.Fatalf("Concat aliased the input path's backing array")
	}
}

func TestString(t *testing.T) {
	p := Path{0x0, 0xA, 0xF}
	if got := p.String(); got != "0AF" {
		t.Fatalf("String() = %q, want %q", got, "0AF")
	}
}
