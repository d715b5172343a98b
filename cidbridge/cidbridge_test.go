package cidbridge

import (
	"testing"

	cid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

func rawCid(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	digest, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		t.Fatalf("mh.Sum: %v", err)
	}
	return cid.NewCidV1(cid.Raw, digest)
}

// TestRoundtrip covers testable property 1: raw_to_cbor(cbor_to_raw(c)) == c
// and cbor_to_raw(raw_to_cbor(c)) == c, with no rehash in either direction.
func TestRoundtrip(t *testing.T) {
	raw := rawCid(t, []byte("hello bridge"))

	asCBOR, err := RawToCBOR(raw)
	if err != nil {
		t.Fatalf("RawToCBOR: %v", err)
	}
	if asCBOR.Prefix().Codec != cid.DagCBOR {
		t.Fatalf("codec = %x, want dag-cbor", asCBOR.Prefix().Codec)
	}
	if string(asCBOR.Hash()) != string(raw.Hash()) {
		t.Fatal("RawToCBOR changed the multihash")
	}

	backToRaw, err := CBORToRaw(asCBOR)
	if err != nil {
		t.Fatalf("CBORToRaw: %v", err)
	}
	if backToRaw != raw {
		t.Fatalf("roundtrip mismatch: got %s, want %s", backToRaw, raw)
	}

	asCBOR2, err := RawToCBOR(backToRaw)
	if err != nil {
		t.Fatalf("RawToCBOR (2nd): %v", err)
	}
	if asCBOR2 != asCBOR {
		t.Fatalf("second roundtrip mismatch: got %s, want %s", asCBOR2, asCBOR)
	}
}

func TestReinterpretRejectsNonSHA256(t *testing.T) {
	digest, err := mh.Sum([]byte("x"), mh.SHA2_512, -1)
	if err != nil {
		t.Fatalf("mh.Sum: %v", err)
	}
	c := cid.NewCidV1(cid.Raw, digest)

	if _, err := RawToCBOR(c); err == nil {
		t.Fatal("expected error for non-sha2-256 cid")
	}
}

func TestParseAndComposeAddress(t *testing.T) {
	raw := rawCid(t, []byte("db root"))
	asCBOR, err := RawToCBOR(raw)
	if err != nil {
		t.Fatalf("RawToCBOR: %v", err)
	}

	address, err := ComposeAddress("orbitdb", asCBOR)
	if err != nil {
		t.Fatalf("ComposeAddress: %v", err)
	}
	if Scheme(address) != "orbitdb" {
		t.Fatalf("Scheme() = %q, want orbitdb", Scheme(address))
	}

	parsed, err := ParseAddress(address)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if parsed != asCBOR {
		t.Fatalf("ParseAddress roundtrip mismatch: got %s, want %s", parsed, asCBOR)
	}
}

func TestParseAddressRejectsEmptyScheme(t *testing.T) {
	if _, err := ParseAddress("//somecid"); err == nil {
		t.Fatal("expected error for empty scheme")
	}
}

func TestStringEncodings(t *testing.T) {
	raw := rawCid(t, []byte("encoded"))
	asCBOR, err := RawToCBOR(raw)
	if err != nil {
		t.Fatalf("RawToCBOR: %v", err)
	}

	rawStr, err := RawString(raw)
	if err != nil {
		t.Fatalf("RawString: %v", err)
	}
	if rawStr[0] != 'b' {
		t.Fatalf("RawString() = %q, want base32 (leading 'b')", rawStr)
	}

	cborStr, err := CBORString(asCBOR)
	if err != nil {
		t.Fatalf("CBORString: %v", err)
	}
	if cborStr[0] != 'z' {
		t.Fatalf("CBORString() = %q, want base58btc (leading 'z')", cborStr)
	}
}
