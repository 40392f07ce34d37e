// Package identity manages the stable public-key identity of a Kerr
// endpoint: an Ed25519 keypair persisted to disk and wrapped in a
// self-signed TLS certificate so the QUIC transport can authenticate
// peers by public key instead of a certificate authority.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// IDSize is the size of a NodeID in bytes (Ed25519 public key, 256 bits).
	IDSize = 32

	keyFileName = "identity.key"

	// certValidity is generous because the certificate's only purpose is
	// to carry the public key through the TLS handshake; there is no CA
	// chain to expire out from under a long-running server.
	certValidity = 10 * 365 * 24 * time.Hour
)

var (
	ErrInvalidIDLength  = errors.New("invalid node ID length: expected 32 bytes")
	ErrInvalidHexString = errors.New("invalid hex string for node ID")

	ZeroID = NodeID{}
)

// NodeID is the public half of an endpoint's identity: its Ed25519 public
// key. It is what a connection token names and what a dialer pins against
// the certificate presented during the QUIC/TLS handshake.
type NodeID [IDSize]byte

// ParseNodeID parses a NodeID from a hex string.
func ParseNodeID(s string) (NodeID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")

	if len(s) != IDSize*2 {
		return ZeroID, fmt.Errorf("%w: got %d hex chars, expected %d", ErrInvalidHexString, len(s), IDSize*2)
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return ZeroID, fmt.Errorf("%w: %v", ErrInvalidHexString, err)
	}

	var id NodeID
	copy(id[:], raw)
	return id, nil
}

// FromBytes creates a NodeID from a byte slice.
func FromBytes(b []byte) (NodeID, error) {
	if len(b) != IDSize {
		return ZeroID, fmt.Errorf("%w: got %d bytes", ErrInvalidIDLength, len(b))
	}
	var id NodeID
	copy(id[:], b)
	return id, nil
}

func (id NodeID) String() string      { return hex.EncodeToString(id[:]) }
func (id NodeID) ShortString() string { return hex.EncodeToString(id[:4]) }
func (id NodeID) Bytes() []byte       { return id[:] }
func (id NodeID) IsZero() bool        { return id == ZeroID }
func (id NodeID) Equal(other NodeID) bool { return id == other }

// MarshalText implements encoding.TextMarshaler.
func (id NodeID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *NodeID) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Identity is a loaded or generated endpoint identity: the Ed25519 keypair
// plus a self-signed certificate presenting the public key over TLS.
type Identity struct {
	NodeID  NodeID
	private ed25519.PrivateKey
	cert    tls.Certificate
}

// Generate creates a brand new ephemeral identity, unconnected to any data
// directory.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity: %w", err)
	}
	return newIdentity(pub, priv)
}

// LoadOrCreate loads an existing identity key from dataDir, or generates and
// persists a new one if none exists. An empty dataDir always generates a
// fresh ephemeral identity, matching spec.md's "may be ephemeral per run".
func LoadOrCreate(dataDir string) (*Identity, bool, error) {
	if dataDir == "" {
		id, err := Generate()
		return id, true, err
	}

	keyPath := filepath.Join(dataDir, keyFileName)
	raw, err := os.ReadFile(keyPath)
	if err == nil {
		priv, perr := parsePrivateKeyPEM(raw)
		if perr != nil {
			return nil, false, fmt.Errorf("failed to parse stored identity: %w", perr)
		}
		id, ierr := newIdentity(priv.Public().(ed25519.PublicKey), priv)
		return id, false, ierr
	}
	if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("failed to read identity: %w", err)
	}

	id, err := Generate()
	if err != nil {
		return nil, false, err
	}
	if err := id.store(dataDir); err != nil {
		return nil, false, err
	}
	return id, true, nil
}

func newIdentity(pub ed25519.PublicKey, priv ed25519.PrivateKey) (*Identity, error) {
	nodeID, err := FromBytes(pub)
	if err != nil {
		return nil, err
	}

	cert, err := selfSignedCert(pub, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity certificate: %w", err)
	}

	return &Identity{NodeID: nodeID, private: priv, cert: cert}, nil
}

// store persists the private key atomically, following the teacher's
// write-to-temp-then-rename pattern.
func (id *Identity) store(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(id.private)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	keyPath := filepath.Join(dataDir, keyFileName)
	tmpPath := keyPath + ".tmp"
	if err := os.WriteFile(tmpPath, pemBytes, 0600); err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}
	if err := os.Rename(tmpPath, keyPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to persist identity: %w", err)
	}
	return nil
}

func parsePrivateKeyPEM(raw []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("invalid PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("stored key is not Ed25519")
	}
	return priv, nil
}

// selfSignedCert wraps an Ed25519 keypair in a minimal self-signed X.509
// certificate, adapted from the teacher's certutil.GenerateCert for a node
// that authenticates peers by pinned public key rather than a CA chain.
func selfSignedCert(pub ed25519.PublicKey, priv ed25519.PrivateKey) (tls.Certificate, error) {
	serial, err := randSerial()
	if err != nil {
		return tls.Certificate{}, err
	}

	nodeID, _ := FromBytes(pub)
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: nodeID.String()},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(certValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        nil,
	}, nil
}

func randSerial() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
}

// TLSCertificate returns the identity's certificate for use in a
// tls.Config.Certificates slice.
func (id *Identity) TLSCertificate() tls.Certificate { return id.cert }

// PublicKeyFromCert extracts the NodeID a peer's leaf certificate is
// presenting, used to verify a dialed connection actually reached the
// NodeID named by the connection token.
func PublicKeyFromCert(cert *x509.Certificate) (NodeID, error) {
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return ZeroID, errors.New("certificate does not carry an Ed25519 public key")
	}
	return FromBytes(pub)
}
