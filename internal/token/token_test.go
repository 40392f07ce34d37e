package token

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"testing"

	"github.com/shi-yan/kerr/internal/identity"
)

// encodeRawJSON gzips and base64url-encodes raw JSON the same way Encode
// does, so tests can hand-build payloads Encode would never produce.
func encodeRawJSON(t *testing.T, raw string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(raw)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes())
}

func testNodeID(t *testing.T) identity.NodeID {
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return id.NodeID
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := Token{
		NodeID:          testNodeID(t),
		RelayURL:        "https://relay.example.com",
		DirectAddresses: []string{"203.0.113.5:4242", "198.51.100.9:4242"},
	}

	s, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.NodeID != want.NodeID {
		t.Fatalf("node id mismatch: got %s want %s", got.NodeID, want.NodeID)
	}
	if got.RelayURL != want.RelayURL {
		t.Fatalf("relay url mismatch: got %q want %q", got.RelayURL, want.RelayURL)
	}
	if len(got.DirectAddresses) != len(want.DirectAddresses) {
		t.Fatalf("direct addresses mismatch: got %v want %v", got.DirectAddresses, want.DirectAddresses)
	}
}

func TestEncodeDecodeWithoutReachabilityHints(t *testing.T) {
	want := Token{NodeID: testNodeID(t)}

	s, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.NodeID != want.NodeID {
		t.Fatalf("node id mismatch after round trip without hints")
	}
	if got.RelayURL != "" || len(got.DirectAddresses) != 0 {
		t.Fatalf("expected empty reachability hints, got %+v", got)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	nodeID := testNodeID(t)
	s := encodeRawJSON(t, `{"future_field":{"x":1},"node_id":"`+nodeID.String()+`"}`)

	got, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.NodeID != nodeID {
		t.Fatal("node id mismatch")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode("not-a-valid-token-at-all"); err == nil {
		t.Fatal("expected error decoding garbage input")
	}
}

func TestDecodeRejectsOversizedToken(t *testing.T) {
	huge := make([]byte, maxTokenSize+1)
	for i := range huge {
		huge[i] = 'a'
	}
	if _, err := Decode(string(huge)); err == nil {
		t.Fatal("expected error decoding oversized token")
	}
}

func TestDecodeRejectsBadNodeIDLength(t *testing.T) {
	// A well-formed token whose node_id is 16 bytes of hex instead of 32.
	s := encodeRawJSON(t, `{"node_id":"00112233445566778899aabbccddeeff"}`)
	if _, err := Decode(s); err == nil {
		t.Fatal("expected Decode to reject a node_id that is not 32 bytes")
	}
}
