// Package transport is the QUIC-based P2P overlay: it creates a local
// endpoint identity, listens for inbound peer connections, and dials
// outbound connections described by a connection token.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/shi-yan/kerr/internal/identity"
	"github.com/shi-yan/kerr/internal/kerrors"
	"github.com/shi-yan/kerr/internal/token"
)

// ALPN is the application-layer protocol negotiated on every QUIC
// connection; endpoints speaking a different ALPN are rejected at the
// TLS layer before any envelope is exchanged.
const ALPN = "kerr/0"

const (
	DefaultIdleTimeout  = 60 * time.Second
	DefaultKeepAlive    = 30 * time.Second
	DefaultConnectTimeout = 30 * time.Second
	DefaultMaxStreams   = 10000
)

// Endpoint owns the local identity, the QUIC listener, and the outbound
// dial capability. The CLI starts one Endpoint per process; tests start
// two in one process to form a loopback pair.
type Endpoint struct {
	identity *identity.Identity
	listener *quic.Listener
	relayURL string
}

// Config configures Start.
type Config struct {
	ListenAddr string
	DataDir    string
	RelayURL   string
	MaxStreams int
}

// Start generates or loads the local identity, binds a UDP socket, and
// begins listening for inbound QUIC connections.
func Start(cfg Config) (*Endpoint, error) {
	id, _, err := identity.LoadOrCreate(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to establish identity: %w", err)
	}

	listenAddr := cfg.ListenAddr
	if listenAddr == "" {
		listenAddr = "0.0.0.0:0"
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{id.TLSCertificate()},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
		ClientAuth:   tls.RequireAnyClientCert,
	}

	maxStreams := cfg.MaxStreams
	if maxStreams <= 0 {
		maxStreams = DefaultMaxStreams
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:     DefaultIdleTimeout,
		KeepAlivePeriod:    DefaultKeepAlive,
		MaxIncomingStreams: int64(maxStreams),
	}

	listener, err := quic.ListenAddr(listenAddr, tlsConfig, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to bind QUIC listener: %w", err)
	}

	return &Endpoint{identity: id, listener: listener, relayURL: cfg.RelayURL}, nil
}

// NodeID is this endpoint's stable public-key identity.
func (e *Endpoint) NodeID() identity.NodeID { return e.identity.NodeID }

// Token encodes this endpoint's current connection token: its NodeID plus
// whatever reachability hints it knows about itself. Direct addresses are
// limited to the listener's bound local address; a production deployment
// behind NAT would additionally learn its public address from the relay.
func (e *Endpoint) Token() (string, error) {
	addr := e.listener.Addr().String()
	t := token.Token{
		NodeID:          e.identity.NodeID,
		RelayURL:        e.relayURL,
		DirectAddresses: []string{addr},
	}
	return token.Encode(t)
}

// Accept blocks for the next inbound authenticated connection.
func (e *Endpoint) Accept(ctx context.Context) (*Connection, error) {
	qc, err := e.listener.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, kerrors.New(kerrors.KindCancelled, err)
		}
		return nil, kerrors.New(kerrors.KindIoError, err)
	}

	peerID, err := remoteNodeID(qc)
	if err != nil {
		qc.CloseWithError(0, "bad peer identity")
		return nil, kerrors.New(kerrors.KindBadHandshake, err)
	}

	return &Connection{conn: qc, peerID: peerID, isDialer: false}, nil
}

// Dial decodes tok, opens an authenticated QUIC connection to the named
// peer, and verifies the presented certificate carries the token's
// NodeID. It tries each direct address in turn; the P2P overlay's own
// relay-assisted hole punching is outside this module's scope, so a
// peer reachable only through a relay cannot currently be dialed here.
func (e *Endpoint) Dial(ctx context.Context, tokenStr string) (*Connection, error) {
	tok, err := token.Decode(tokenStr)
	if err != nil {
		return nil, kerrors.New(kerrors.KindInvalidToken, err)
	}
	if len(tok.DirectAddresses) == 0 {
		return nil, kerrors.Newf(kerrors.KindUnreachable, "token carries no direct addresses and relay dialing is not implemented")
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{e.identity.TLSCertificate()},
		NextProtos:         []string{ALPN},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: verifyPeerIsNodeID(tok.NodeID),
	}
	quicConfig := &quic.Config{
		MaxIdleTimeout:  DefaultIdleTimeout,
		KeepAlivePeriod: DefaultKeepAlive,
	}

	var lastErr error
	for _, addr := range tok.DirectAddresses {
		qc, err := quic.DialAddr(ctx, addr, tlsConfig, quicConfig)
		if err != nil {
			lastErr = err
			continue
		}
		return &Connection{conn: qc, peerID: tok.NodeID, isDialer: true}, nil
	}

	if ctx.Err() != nil {
		return nil, kerrors.New(kerrors.KindTimeout, ctx.Err())
	}
	return nil, kerrors.New(kerrors.KindUnreachable, lastErr)
}

// Close stops the listener, refusing further inbound connections.
func (e *Endpoint) Close() error {
	return e.listener.Close()
}

// Addr returns the endpoint's bound local address.
func (e *Endpoint) Addr() string { return e.listener.Addr().String() }

// verifyPeerIsNodeID builds a tls.Config.VerifyPeerCertificate callback
// that checks the leaf certificate's Ed25519 public key against want,
// giving us identity pinning without a certificate authority.
func verifyPeerIsNodeID(want identity.NodeID) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("peer presented no certificate")
		}
		cert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("failed to parse peer certificate: %w", err)
		}
		got, err := identity.PublicKeyFromCert(cert)
		if err != nil {
			return err
		}
		if !got.Equal(want) {
			return fmt.Errorf("peer identity mismatch: got %s want %s", got.ShortString(), want.ShortString())
		}
		return nil
	}
}

func remoteNodeID(qc quic.Connection) (identity.NodeID, error) {
	state := qc.ConnectionState().TLS
	if len(state.PeerCertificates) == 0 {
		return identity.ZeroID, fmt.Errorf("peer presented no certificate")
	}
	return identity.PublicKeyFromCert(state.PeerCertificates[0])
}
