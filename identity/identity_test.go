package identity

import (
	"context"
	"testing"
)

func TestEd25519FactoryCreate(t *testing.T) {
	f := Ed25519Factory{}
	ident, err := f.Create(context.Background(), "notes")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ident.ID != "notes" {
		t.Fatalf("ID = %q, want notes", ident.ID)
	}
	if ident.Type != "ed25519" {
		t.Fatalf("Type = %q, want ed25519", ident.Type)
	}
	if ident.PublicKeyHex() == "" {
		t.Fatal("expected a non-empty public key")
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	f := Ed25519Factory{}
	ident, err := f.Create(context.Background(), "notes")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	data := []byte("log entry bytes")
	sig, err := ident.Sign(data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ident.Verify(data, sig) {
		t.Fatal("expected signature to verify against the signed data")
	}
	if ident.Verify([]byte("tampered"), sig) {
		t.Fatal("expected signature to fail against different data")
	}
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	f := Ed25519Factory{}
	ident, err := f.Create(context.Background(), "notes")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ident.Verify([]byte("data"), "not-hex") {
		t.Fatal("expected malformed hex signature to fail verification")
	}
}

func TestTwoFactoriesProduceDistinctKeys(t *testing.T) {
	f := Ed25519Factory{}
	a, err := f.Create(context.Background(), "a")
	if err != nil {
		t.Fatalf("Create a: %v", err)
	}
	b, err := f.Create(context.Background(), "b")
	if err != nil {
		t.Fatalf("Create b: %v", err)
	}
	if a.PublicKeyHex() == b.PublicKeyHex() {
		t.Fatal("expected distinct key pairs across factory calls")
	}
}
