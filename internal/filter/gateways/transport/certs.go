package transport

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	caCommonName     = "rr-filter Root CA"
	caValidity       = 10 * 365 * 24 * time.Hour
	caKeyBits        = 2048
	defaultLeafCache = 1024
)

// CertManager holds the interception root CA and caches the leaf
// certificates signed for intercepted hosts.
type CertManager struct {
	cert    *x509.Certificate
	tlsCert tls.Certificate
	certPEM []byte
	leaves  *lru.Cache[string, *tls.Certificate]
}

// LoadOrCreateCA loads the CA from certPath and keyPath. When neither file
// exists a new RSA CA is generated and written there, the key with mode
// 0600. Exactly one of the two existing is an error.
func LoadOrCreateCA(certPath, keyPath string) (*CertManager, bool, error) {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	switch {
	case certErr == nil && keyErr == nil:
		m, err := LoadCA(certPath, keyPath)
		return m, false, err
	case errors.Is(certErr, os.ErrNotExist) && errors.Is(keyErr, os.ErrNotExist):
		certPEM, keyPEM, err := GenerateCA(caCommonName, caValidity)
		if err != nil {
			return nil, false, err
		}
		if err := saveCA(certPath, keyPath, certPEM, keyPEM); err != nil {
			return nil, false, err
		}
		m, err := NewCertManagerFromPEM(certPEM, keyPEM)
		return m, true, err
	case certErr != nil && !errors.Is(certErr, os.ErrNotExist):
		return nil, false, fmt.Errorf("stat CA cert: %w", certErr)
	case keyErr != nil && !errors.Is(keyErr, os.ErrNotExist):
		return nil, false, fmt.Errorf("stat CA key: %w", keyErr)
	default:
		return nil, false, fmt.Errorf("CA cert %s and key %s must both exist or both be absent", certPath, keyPath)
	}
}

// LoadCA reads a PEM certificate and key from disk.
func LoadCA(certPath, keyPath string) (*CertManager, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read CA cert: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read CA key: %w", err)
	}
	return NewCertManagerFromPEM(certPEM, keyPEM)
}

// NewCertManagerFromPEM creates a CertManager from PEM-encoded CA cert and key.
// PKCS#1 RSA keys and PKCS#8 RSA or ECDSA keys are accepted.
func NewCertManagerFromPEM(certPEM, keyPEM []byte) (*CertManager, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil || certBlock.Type != "CERTIFICATE" {
		return nil, errors.New("failed to decode CA certificate PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse CA cert: %w", err)
	}
	if !cert.IsCA {
		return nil, errors.New("certificate is not a CA")
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, errors.New("failed to decode CA key PEM")
	}
	key, err := parsePrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, err
	}

	tlsCert := tls.Certificate{Certificate: [][]byte{cert.Raw}, PrivateKey: key, Leaf: cert}
	leaves, err := lru.New[string, *tls.Certificate](defaultLeafCache)
	if err != nil {
		return nil, err
	}
	return &CertManager{
		cert:    cert,
		tlsCert: tlsCert,
		certPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}),
		leaves:  leaves,
	}, nil
}

func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse CA key: %w", err)
	}
	signer, ok := k.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported CA key type %T", k)
	}
	return signer, nil
}

// GenerateCA creates a self-signed RSA root valid for validity.
func GenerateCA(commonName string, validity time.Duration) (certPEM, keyPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, caKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate CA key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("generate serial: %w", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"rr-filter"},
			CommonName:   commonName,
		},
		NotBefore:             now.Add(-1 * time.Hour),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create CA cert: %w", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM, nil
}

func saveCA(certPath, keyPath string, certPEM, keyPEM []byte) error {
	for _, dir := range []string{filepath.Dir(certPath), filepath.Dir(keyPath)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create CA dir: %w", err)
		}
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("write CA key: %w", err)
	}
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("write CA cert: %w", err)
	}
	return nil
}

// TLSCertificate returns the CA as a tls.Certificate for signing leaves.
func (m *CertManager) TLSCertificate() *tls.Certificate { return &m.tlsCert }

// Certificate returns the parsed CA certificate.
func (m *CertManager) Certificate() *x509.Certificate { return m.cert }

// CertPEM returns the PEM-encoded CA certificate.
func (m *CertManager) CertPEM() []byte { return append([]byte(nil), m.certPEM...) }

// Fetch returns the cached leaf for hostname, generating it with gen on a
// miss. It satisfies goproxy's CertStorage.
func (m *CertManager) Fetch(hostname string, gen func() (*tls.Certificate, error)) (*tls.Certificate, error) {
	if c, ok := m.leaves.Get(hostname); ok {
		return c, nil
	}
	c, err := gen()
	if err != nil {
		return nil, err
	}
	m.leaves.Add(hostname, c)
	return c, nil
}

// CachedLeaves returns the number of cached leaf certificates.
func (m *CertManager) CachedLeaves() int { return m.leaves.Len() }
