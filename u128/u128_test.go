package u128

import "testing"

func TestBytesRoundTrip(t *testing.T) {
	v := U128{Hi: 0x0102030405060708, Lo: 0x1112131415161718}
	b := v.Bytes()
	got := FromBytes(b)
	if got != v {
		t.Fatalf("round trip mismatch: got=%+v want=%+v", got, v)
	}
}

func TestAddNoCarry(t *testing.T) {
	a := FromUint64(100)
	b := FromUint64(25)
	got := a.Add(b)
	if got.Cmp(FromUint64(125)) != 0 {
		t.Fatalf("Add = %s, want 125", got)
	}
}

func TestAddCarriesIntoHi(t *testing.T) {
	a := U128{Hi: 0, Lo: ^uint64(0)}
	got := a.Add(FromUint64(1))
	want := U128{Hi: 1, Lo: 0}
	if got != want {
		t.Fatalf("Add carry mismatch: got=%+v want=%+v", got, want)
	}
}

func TestSub(t *testing.T) {
	a := FromUint64(100)
	b := FromUint64(30)
	got := a.Sub(b)
	if got.Cmp(FromUint64(70)) != 0 {
		t.Fatalf("Sub = %s, want 70", got)
	}
}

func TestCmp(t *testing.T) {
	if FromUint64(5).Cmp(FromUint64(10)) >= 0 {
		t.Fatalf("5 should be less than 10")
	}
	if FromUint64(10).Cmp(FromUint64(5)) <= 0 {
		t.Fatalf("10 should be greater than 5")
	}
	if FromUint64(7).Cmp(FromUint64(7)) != 0 {
		t.Fatalf("7 should equal 7")
	}
}

func TestString(t *testing.T) {
	if got, want := FromUint64(1337).String(), "1337"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
