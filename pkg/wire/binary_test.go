package wire

import "testing"

func TestFlip64_Symmetric(t *testing.T) {
	values := []uint64{0, 1, 0x0102030405060708, ^uint64(0), uint64(1) << 63}
	for _, v := range values {
		if got := Flip64(Flip64(v)); got != v {
			t.Errorf("Flip64(Flip64(%#x)) = %#x, want %#x", v, got, v)
		}
	}
}

func TestFlip64_WireOrder(t *testing.T) {
	// A flipped word, stored in host order, must lay out big-endian in
	// memory.
	var m Message
	if err := m.BodyPutUint64(0x0102030405060708); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	for i, want := range []byte{1, 2, 3, 4, 5, 6, 7, 8} {
		if m.Body1()[i] != want {
			t.Errorf("body[%d] = %#x, want %#x", i, m.Body1()[i], want)
		}
	}
}

func TestAlign(t *testing.T) {
	cases := map[int]int{0: 0, 1: 8, 7: 8, 8: 8, 9: 16, 16: 16}
	for n, want := range cases {
		if got := Align(n); got != want {
			t.Errorf("Align(%d) = %d, want %d", n, got, want)
		}
	}
}
