package keys

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestOpenGeneratesAndReloads(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	message := []byte("license payload")
	signature := first.Sign(message)
	if !first.Verify(message, signature) {
		t.Fatalf("expected signature to verify")
	}

	// A second Open must reuse the persisted keypair, not mint a new one:
	// previously issued tokens have to keep verifying.
	second, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !second.Verify(message, signature) {
		t.Fatalf("expected reloaded keypair to verify old signature")
	}
	if first.PublicKeyPEM() != second.PublicKeyPEM() {
		t.Fatalf("expected identical public keys across restarts")
	}
}

func TestVerifyRejectsTamper(t *testing.T) {
	manager, err := Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	message := []byte("license payload")
	signature := manager.Sign(message)

	if manager.Verify([]byte("other payload"), signature) {
		t.Fatalf("expected verification failure for altered message")
	}

	flipped := append([]byte(nil), signature...)
	flipped[0] ^= 0xff
	if manager.Verify(message, flipped) {
		t.Fatalf("expected verification failure for altered signature")
	}

	if manager.Verify(message, signature[:10]) {
		t.Fatalf("expected verification failure for truncated signature")
	}
}

func TestKeyFilePermissions(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir, zap.NewNop()); err != nil {
		t.Fatalf("open: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, privateKeyFile))
	if err != nil {
		t.Fatalf("stat private key: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected private key mode 0600, got %o", perm)
	}
}

func TestPublicKeyPEMShape(t *testing.T) {
	manager, err := Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	pemText := manager.PublicKeyPEM()
	if !strings.HasPrefix(pemText, "-----BEGIN PUBLIC KEY-----") {
		t.Fatalf("unexpected PEM header: %q", pemText)
	}
	if !strings.Contains(pemText, "-----END PUBLIC KEY-----") {
		t.Fatalf("missing PEM footer: %q", pemText)
	}
}
