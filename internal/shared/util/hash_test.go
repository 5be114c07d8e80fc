package util

import "testing"

func TestContentHash(t *testing.T) {
	data := []byte("id,lat,lon\n1,0.1,0.2\n")
	got := ContentHash(data)
	if got != ContentHash(append([]byte(nil), data...)) {
		t.Fatalf("expected stable hash, got %s", got)
	}
	if got == ContentHash([]byte("id,lat,lon\n")) {
		t.Fatalf("different content produced the same hash")
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("hash contains non-hex character: %c", ch)
		}
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
}
