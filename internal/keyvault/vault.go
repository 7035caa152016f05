// Package keyvault is the named EC keypair registry: export signing, the
// next-day JWT and response hashing each get their own keypair.
package keyvault

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// Registered key names.
const (
	KeyGaen       = "gaen"       // export bundle signing
	KeyNextDayJWT = "nextDayJWT" // delayed-key JWT issuing
	KeyHashFilter = "hashFilter" // response hashing
)

// ErrUnknownKey is returned when a name was never registered.
var ErrUnknownKey = errors.New("keyvault: unknown key name")

// Pair is an EC keypair. Public is always derived from Private.
type Pair struct {
	Private *ecdsa.PrivateKey
	Public  *ecdsa.PublicKey
}

// Vault maps names to keypairs. Populated once at startup, read-only after.
type Vault struct {
	pairs map[string]Pair
}

// New returns an empty vault.
func New() *Vault {
	return &Vault{pairs: make(map[string]Pair)}
}

// Add registers a parsed private key under the given name.
func (v *Vault) Add(name string, priv *ecdsa.PrivateKey) {
	v.pairs[name] = Pair{Private: priv, Public: &priv.PublicKey}
}

// AddFromPEM parses a PEM-encoded EC private key and registers it. PKCS#8
// and SEC1 encodings are both accepted.
func (v *Vault) AddFromPEM(name string, pemBytes []byte) error {
	priv, err := ParseECPrivateKeyPEM(pemBytes)
	if err != nil {
		return fmt.Errorf("keyvault: loading %q: %w", name, err)
	}
	v.Add(name, priv)
	return nil
}

// Get returns the keypair registered under name.
func (v *Vault) Get(name string) (Pair, error) {
	p, ok := v.pairs[name]
	if !ok {
		return Pair{}, fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	return p, nil
}

// ParseECPrivateKeyPEM decodes a PEM block and parses the EC private key
// inside, auto-detecting PKCS#8 vs SEC1.
func ParseECPrivateKeyPEM(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("neither SEC1 nor PKCS#8: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("PKCS#8 key is not EC")
	}
	return key, nil
}

// ParseECPublicKeyPEM decodes a PEM block holding a PKIX EC public key.
func ParseECPublicKeyPEM(pemBytes []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not EC")
	}
	return pub, nil
}

// EncodePKCS8PEM renders a private key as a PEM "PRIVATE KEY" block.
func EncodePKCS8PEM(priv *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicPEM renders the public half as a PEM "PUBLIC KEY" block.
func EncodePublicPEM(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
