package auth

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// SigningAlgorithm is the only algorithm the gateway issues or accepts.
const SigningAlgorithm = "RS256"

// KeyManager holds the gateway's signing key and publishes it as a JWK set.
// The key ID is the RFC 7638 thumbprint of the public key, so it is stable
// across restarts that load the same key.
type KeyManager struct {
	keyID      string
	privateKey *rsa.PrivateKey
	jwkSet     jwk.Set
}

// NewKeyManager creates a key manager from a PEM-encoded RSA private key
// (PKCS1 or PKCS8).
func NewKeyManager(privateKeyPEM string) (*KeyManager, error) {
	privateKey, err := parseRSAPrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	pub, err := jwk.FromRaw(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWK: %w", err)
	}
	thumbprint, err := pub.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	keyID := base64.RawURLEncoding.EncodeToString(thumbprint)

	_ = pub.Set(jwk.KeyIDKey, keyID)
	_ = pub.Set(jwk.AlgorithmKey, SigningAlgorithm)
	_ = pub.Set(jwk.KeyUsageKey, "sig")

	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		return nil, fmt.Errorf("failed to build JWK set: %w", err)
	}

	return &KeyManager{
		keyID:      keyID,
		privateKey: privateKey,
		jwkSet:     set,
	}, nil
}

// KeyID returns the kid stamped on issued tokens.
func (km *KeyManager) KeyID() string {
	return km.keyID
}

// PrivateKey returns the signing key.
func (km *KeyManager) PrivateKey() *rsa.PrivateKey {
	return km.privateKey
}

// PublicKey returns the verification key for kid.
func (km *KeyManager) PublicKey(kid string) (*rsa.PublicKey, error) {
	if kid != km.keyID {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return &km.privateKey.PublicKey, nil
}

// JWKSet returns the public JWK set.
func (km *KeyManager) JWKSet() jwk.Set {
	return km.jwkSet
}

// parseRSAPrivateKey parses a PEM-encoded RSA private key.
func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS8 format
		parsedKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := parsedKey.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	return key, nil
}
