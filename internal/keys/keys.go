package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/sha3"
)

const (
	devKeyBytes    = 64
	credentialSize = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Generator is the platform key-generation collaborator. Every value it
// returns is 128 hex characters.
type Generator struct {
	rand io.Reader
}

func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// NewGeneratorFromReader draws randomness from r instead of crypto/rand.
func NewGeneratorFromReader(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// DevKey returns 64 random bytes, hex encoded.
func (g *Generator) DevKey() (string, error) {
	buf := make([]byte, devKeyBytes)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// WalletKeyPair generates an ed25519 key pair. The private key is the
// 64-byte seed||public form; the public key is followed by its SHA3-256
// checksum so both encode to 128 hex characters.
func (g *Generator) WalletKeyPair() (string, string, error) {
	pub, priv, err := ed25519.GenerateKey(g.rand)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate ed25519 key: %w", err)
	}
	return EncodePublicKey(pub), hex.EncodeToString(priv), nil
}

// EncodePublicKey renders pub||SHA3-256(pub) as hex.
func EncodePublicKey(pub ed25519.PublicKey) string {
	sum := sha3.Sum256(pub)
	return hex.EncodeToString(append(append([]byte{}, pub...), sum[:]...))
}

// DecodePublicKey reverses EncodePublicKey and verifies the checksum.
func DecodePublicKey(encoded string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("public key is not hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize+32 {
		return nil, fmt.Errorf("public key has %d bytes, want %d", len(raw), ed25519.PublicKeySize+32)
	}
	pub := ed25519.PublicKey(raw[:ed25519.PublicKeySize])
	sum := sha3.Sum256(pub)
	if string(sum[:]) != string(raw[ed25519.PublicKeySize:]) {
		return nil, fmt.Errorf("public key checksum mismatch")
	}
	return pub, nil
}

// HashCredential derives the 64-character credential hash stored on users
// from a secret and a per-user salt.
func HashCredential(secret, salt string) string {
	key := argon2.IDKey([]byte(secret), []byte(salt), argonTime, argonMemory, argonThreads, credentialSize)
	return hex.EncodeToString(key)
}
