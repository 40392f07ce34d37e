// Package token implements the connection-string codec: the compact,
// transportable blob that names a peer's identity plus its reachability
// hints (a relay URL and a set of direct UDP socket addresses).
package token

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shi-yan/kerr/internal/identity"
	"github.com/shi-yan/kerr/internal/kerrors"
)

// maxTokenSize is the largest encoded token Decode will accept, guarding
// against a malicious or corrupt peer handing us an unbounded gzip stream.
const maxTokenSize = 8 * 1024

// Token is the identity+reachability triple a peer publishes out-of-band
// and a dialer consumes to reach it.
type Token struct {
	NodeID           identity.NodeID `json:"node_id"`
	RelayURL         string          `json:"relay_url,omitempty"`
	DirectAddresses  []string        `json:"direct_addresses,omitempty"`
}

// wireToken mirrors Token but with node_id as a plain hex string, so we
// control the exact JSON field ordering independent of Go's struct tag
// marshalling, and so we can validate the hex length before trusting it.
type wireToken struct {
	NodeID          string   `json:"node_id"`
	RelayURL        string   `json:"relay_url,omitempty"`
	DirectAddresses []string `json:"direct_addresses,omitempty"`
}

// Encode serializes t as canonical JSON (sorted keys), gzips it, and
// returns the result as unpadded base64url text.
func Encode(t Token) (string, error) {
	wire := wireToken{
		NodeID:          t.NodeID.String(),
		RelayURL:        t.RelayURL,
		DirectAddresses: t.DirectAddresses,
	}

	// encoding/json emits struct fields in declaration order, and
	// wireToken's fields (node_id, relay_url, direct_addresses) are not
	// in sorted order, so we marshal through a map to guarantee canonical
	// sorted-key output.
	raw, err := canonicalJSON(wire)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return "", fmt.Errorf("failed to compress token: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to compress token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode, rejecting oversized or malformed input.
func Decode(s string) (Token, error) {
	if len(s) > maxTokenSize {
		return Token{}, kerrors.Newf(kerrors.KindInvalidToken, "token exceeds maximum size")
	}

	compressed, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		// Tolerate padded input from clipboards/terminals that appended '='.
		compressed, err = base64.URLEncoding.DecodeString(s)
		if err != nil {
			return Token{}, kerrors.New(kerrors.KindInvalidToken, err)
		}
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return Token{}, kerrors.New(kerrors.KindInvalidToken, err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(io.LimitReader(gz, maxTokenSize*4))
	if err != nil {
		return Token{}, kerrors.New(kerrors.KindInvalidToken, err)
	}

	var wire wireToken
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Token{}, kerrors.New(kerrors.KindInvalidToken, err)
	}

	nodeID, err := identity.ParseNodeID(wire.NodeID)
	if err != nil {
		return Token{}, kerrors.New(kerrors.KindInvalidToken, err)
	}

	return Token{
		NodeID:          nodeID,
		RelayURL:        wire.RelayURL,
		DirectAddresses: wire.DirectAddresses,
	}, nil
}

// canonicalJSON marshals v through a generic map so object keys always
// come out sorted, matching the wire format's canonical-JSON requirement.
func canonicalJSON(v wireToken) ([]byte, error) {
	m := map[string]any{
		"node_id": v.NodeID,
	}
	if v.RelayURL != "" {
		m["relay_url"] = v.RelayURL
	}
	if len(v.DirectAddresses) > 0 {
		m["direct_addresses"] = v.DirectAddresses
	}
	// json.Marshal sorts map[string]any keys lexicographically.
	return json.Marshal(m)
}
