package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

// TLSConfig controls the optional transport-layer encryption wrap
// applied immediately after accept (spec §4.1). CertFile/KeyFile may
// be empty, in which case a self-signed certificate is generated for
// the lifetime of the process — adequate for the encryption-without-
// authentication use case the spec scopes this to (password challenge
// handles authentication; Non-goals excludes a full PKI).
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// ServerConfig builds a *tls.Config suitable for wrapping an accepted
// worker connection.
func (c TLSConfig) ServerConfig() (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load tls key pair: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	}
	cert, err := generateSelfSigned()
	if err != nil {
		return nil, fmt.Errorf("generate self-signed certificate: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{*cert}}, nil
}

// WrapServer wraps an accepted connection in TLS if cfg is non-nil.
func WrapServer(conn net.Conn, cfg *tls.Config) net.Conn {
	if cfg == nil {
		return conn
	}
	return tls.Server(conn, cfg)
}

// generateSelfSigned produces an ephemeral EC certificate for a single
// process lifetime, following the same x509.CreateCertificate shape
// warren's CertAuthority uses for its root cert, trimmed to a single
// self-signed leaf with no issuing authority.
func generateSelfSigned() (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "dswarm-manager"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}, nil
}
