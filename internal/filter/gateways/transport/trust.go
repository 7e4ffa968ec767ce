package transport

import (
	"fmt"
	"os"
	"path/filepath"
)

// TrustInstaller makes the interception CA trusted by clients.
type TrustInstaller interface {
	Install(certPEM []byte) error
	Uninstall() error
}

// FileTrust exports the CA certificate to Path so an operator or OS tooling
// (update-ca-certificates, certutil, Keychain) can import it. Uninstall keeps
// the file because clients may still trust it.
type FileTrust struct {
	Path string
}

func (f FileTrust) Install(certPEM []byte) error {
	if len(certPEM) == 0 {
		return fmt.Errorf("export CA: empty certificate")
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("export CA: %w", err)
	}
	if err := os.WriteFile(f.Path, certPEM, 0o644); err != nil {
		return fmt.Errorf("export CA: %w", err)
	}
	return nil
}

func (f FileTrust) Uninstall() error { return nil }

// NoopTrust assumes the CA is already trusted.
type NoopTrust struct{}

func (NoopTrust) Install([]byte) error { return nil }
func (NoopTrust) Uninstall() error     { return nil }

var _ TrustInstaller = FileTrust{}
var _ TrustInstaller = NoopTrust{}
