package engine

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h := header{
		magic:          MagicWord,
		shardCount:     3,
		tuningOpts:     1,
		expectedTokens: 1 << 20,
		shardUnitSize:  256 << 20,
	}
	buf := encodeHeader(h)
	if len(buf) != 19 {
		t.Fatalf("expected 19-byte header, got %d", len(buf))
	}
	got, err := decodeHeader(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Fatalf("got %+v want %+v", got, h)
	}
}

func TestHeaderDecodeTruncated(t *testing.T) {
	if _, err := decodeHeader(make([]byte, 5)); err == nil {
		t.Fatal("expected error decoding truncated header")
	}
}

func TestIDKeyOrderingIsBigEndian(t *testing.T) {
	a, b := idKey(1), idKey(2)
	if !(string(a) < string(b)) {
		t.Fatalf("expected idKey(1) < idKey(2) lexicographically for sorted iteration")
	}
	if keyToID(a) != 1 || keyToID(b) != 2 {
		t.Fatalf("round trip failed")
	}
}
