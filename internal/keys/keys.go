// Package keys owns the Ed25519 keypair that signs license tokens.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	privateKeyFile = "private.pem"
	publicKeyFile  = "public.pem"
)

var (
	ErrNotEd25519 = errors.New("key material is not Ed25519")
)

// Manager holds the process-wide signing keypair. It is immutable after Open
// and safe for concurrent use.
type Manager struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// Open loads the keypair stored under dir, generating and persisting a fresh
// one on first run. Tokens must stay verifiable across restarts, so an
// existing keypair is always reused. The private key is written with
// owner-only permissions, the public key world-readable.
func Open(dir string, log *zap.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create keys dir %s: %w", dir, err)
	}

	privPath := filepath.Join(dir, privateKeyFile)
	pubPath := filepath.Join(dir, publicKeyFile)

	if fileExists(privPath) && fileExists(pubPath) {
		log.Info("loading existing Ed25519 keypair", zap.String("dir", dir))
		return load(privPath, pubPath)
	}

	log.Info("generating new Ed25519 keypair", zap.String("dir", dir))
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return nil, fmt.Errorf("write public key: %w", err)
	}

	return &Manager{priv: priv, pub: pub}, nil
}

func load(privPath, pubPath string) (*Manager, error) {
	privPEM, err := os.ReadFile(privPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	pubPEM, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}

	privBlock, _ := pem.Decode(privPEM)
	if privBlock == nil {
		return nil, fmt.Errorf("parse %s: no PEM block", privPath)
	}
	privAny, err := x509.ParsePKCS8PrivateKey(privBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := privAny.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("parse private key: %w", ErrNotEd25519)
	}

	pubBlock, _ := pem.Decode(pubPEM)
	if pubBlock == nil {
		return nil, fmt.Errorf("parse %s: no PEM block", pubPath)
	}
	pubAny, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := pubAny.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parse public key: %w", ErrNotEd25519)
	}

	return &Manager{priv: priv, pub: pub}, nil
}

// Sign signs message with the private key.
func (m *Manager) Sign(message []byte) []byte {
	return ed25519.Sign(m.priv, message)
}

// Verify reports whether signature is a valid signature of message.
func (m *Manager) Verify(message, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(m.pub, message, signature)
}

// PublicKeyPEM returns the public key in PKIX PEM form for offline
// verification by license-consuming clients.
func (m *Manager) PublicKeyPEM() string {
	der, err := x509.MarshalPKIXPublicKey(m.pub)
	if err != nil {
		// The key was already marshalled once during Open.
		panic(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
