package identity

import (
	"crypto/x509"
	"os"
	"testing"
)

func TestParseNodeIDRoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	parsed, err := ParseNodeID(id.NodeID.String())
	if err != nil {
		t.Fatalf("ParseNodeID: %v", err)
	}
	if !parsed.Equal(id.NodeID) {
		t.Fatalf("round trip mismatch: %s != %s", parsed, id.NodeID)
	}
}

func TestParseNodeIDAccepts0xPrefix(t *testing.T) {
	id, _ := Generate()
	parsed, err := ParseNodeID("0x" + id.NodeID.String())
	if err != nil {
		t.Fatalf("ParseNodeID with 0x prefix: %v", err)
	}
	if !parsed.Equal(id.NodeID) {
		t.Fatal("0x-prefixed parse mismatch")
	}
}

func TestParseNodeIDRejectsWrongLength(t *testing.T) {
	if _, err := ParseNodeID("abcd"); err == nil {
		t.Fatal("expected error for short hex string")
	}
}

func TestLoadOrCreatePersists(t *testing.T) {
	dir, err := os.MkdirTemp("", "kerr-identity-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	first, created, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate first: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create a new identity")
	}

	second, created, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate second: %v", err)
	}
	if created {
		t.Fatal("expected second call to load the persisted identity")
	}
	if !second.NodeID.Equal(first.NodeID) {
		t.Fatalf("loaded identity differs: %s != %s", second.NodeID, first.NodeID)
	}
}

func TestLoadOrCreateEphemeralWithoutDataDir(t *testing.T) {
	a, _, err := LoadOrCreate("")
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	b, _, err := LoadOrCreate("")
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if a.NodeID.Equal(b.NodeID) {
		t.Fatal("expected two ephemeral identities to differ")
	}
}

func TestSelfSignedCertCarriesNodeID(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	cert := id.TLSCertificate()
	if len(cert.Certificate) != 1 {
		t.Fatalf("expected exactly one certificate in chain, got %d", len(cert.Certificate))
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	got, err := PublicKeyFromCert(leaf)
	if err != nil {
		t.Fatalf("PublicKeyFromCert: %v", err)
	}
	if !got.Equal(id.NodeID) {
		t.Fatalf("certificate key %s does not match node id %s", got, id.NodeID)
	}
}
