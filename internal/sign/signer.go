// Package sign produces the ordered signature list attached to every
// transaction. Signers are opaque capabilities; this package ships Ed25519
// and ECDSA(secp256k1) implementations for operators configured from hex.
package sign

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"golang.org/x/crypto/sha3"
)

// Algorithm names a signature scheme.
type Algorithm int

const (
	Ed25519 Algorithm = iota + 1
	ECDSASecp256k1
)

func (a Algorithm) String() string {
	switch a {
	case Ed25519:
		return "ed25519"
	case ECDSASecp256k1:
		return "ecdsa_secp256k1"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// ParseAlgorithm accepts "ed25519" and "ecdsa"/"ecdsa_secp256k1".
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ed25519":
		return Ed25519, nil
	case "ecdsa", "ecdsa_secp256k1", "secp256k1":
		return ECDSASecp256k1, nil
	default:
		return 0, fmt.Errorf("sign: unknown key algorithm %q", s)
	}
}

// PublicKey is the raw public key of a signer.
type PublicKey struct {
	Algorithm Algorithm
	Bytes     []byte
}

func (k PublicKey) String() string {
	return k.Algorithm.String() + ":" + hex.EncodeToString(k.Bytes)
}

// Verify checks sig over message. ECDSA signatures are r||s over the
// keccak-256 digest of message.
func (k PublicKey) Verify(message, sig []byte) bool {
	switch k.Algorithm {
	case Ed25519:
		if len(k.Bytes) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(k.Bytes), message, sig)
	case ECDSASecp256k1:
		pub, err := secp256k1.ParsePubKey(k.Bytes)
		if err != nil || len(sig) != 64 {
			return false
		}
		var r, s secp256k1.ModNScalar
		if r.SetByteSlice(sig[:32]) || s.SetByteSlice(sig[32:]) {
			return false
		}
		return ecdsa.NewSignature(&r, &s).Verify(keccak256(message), pub)
	default:
		return false
	}
}

// Signer produces a signature over a byte buffer. Implementations may
// block (remote HSM, wallet prompt) and must honour ctx.
type Signer interface {
	PublicKey() PublicKey
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

// SignaturePair is one entry of the signature map.
type SignaturePair struct {
	PublicKey PublicKey
	Signature []byte
}

// Wire converts the pair into its protobuf form. The full public key is
// used as the prefix.
func (p SignaturePair) Wire() wire.SignaturePair {
	out := wire.SignaturePair{PubKeyPrefix: p.PublicKey.Bytes}
	switch p.PublicKey.Algorithm {
	case ECDSASecp256k1:
		out.ECDSASecp256k1 = p.Signature
	default:
		out.Ed25519 = p.Signature
	}
	return out
}

// ============================================================================
// Ed25519
// ============================================================================

// Ed25519Signer signs with an in-memory Ed25519 key.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

func NewEd25519Signer(key ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{key: key}
}

// GenerateEd25519 creates a signer over a fresh random key.
func GenerateEd25519() (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("sign: generate ed25519 key: %w", err)
	}
	return NewEd25519Signer(priv), nil
}

func (s *Ed25519Signer) PublicKey() PublicKey {
	return PublicKey{Algorithm: Ed25519, Bytes: s.key.Public().(ed25519.PublicKey)}
}

func (s *Ed25519Signer) Sign(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ed25519.Sign(s.key, message), nil
}

// Seed returns the 32-byte seed, the form keys are configured in.
func (s *Ed25519Signer) Seed() []byte { return s.key.Seed() }

// ============================================================================
// ECDSA secp256k1
// ============================================================================

// ECDSASigner signs the keccak-256 digest of the message with secp256k1.
type ECDSASigner struct {
	key *secp256k1.PrivateKey
}

func NewECDSASigner(key *secp256k1.PrivateKey) *ECDSASigner {
	return &ECDSASigner{key: key}
}

func GenerateECDSA() (*ECDSASigner, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("sign: generate secp256k1 key: %w", err)
	}
	return NewECDSASigner(key), nil
}

func (s *ECDSASigner) PublicKey() PublicKey {
	return PublicKey{Algorithm: ECDSASecp256k1, Bytes: s.key.PubKey().SerializeCompressed()}
}

// Sign returns the 64-byte r||s signature. RFC6979 nonces make it
// deterministic for a given key and message.
func (s *ECDSASigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	compact := ecdsa.SignCompact(s.key, keccak256(message), true)
	return compact[1:], nil
}

func (s *ECDSASigner) Bytes() []byte { return s.key.Serialize() }

func keccak256(message []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(message)
	return h.Sum(nil)
}

// ParsePrivateKey builds a signer from a hex-encoded key: a 32-byte seed
// (or 64-byte expanded key) for Ed25519, a 32-byte scalar for ECDSA.
func ParsePrivateKey(algorithm Algorithm, hexKey string) (Signer, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("sign: private key is not hex: %w", err)
	}

	switch algorithm {
	case Ed25519:
		switch len(raw) {
		case ed25519.SeedSize:
			return NewEd25519Signer(ed25519.NewKeyFromSeed(raw)), nil
		case ed25519.PrivateKeySize:
			return NewEd25519Signer(ed25519.PrivateKey(raw)), nil
		default:
			return nil, fmt.Errorf("sign: ed25519 key must be 32 or 64 bytes, got %d", len(raw))
		}
	case ECDSASecp256k1:
		if len(raw) != secp256k1.PrivKeyBytesLen {
			return nil, fmt.Errorf("sign: secp256k1 key must be 32 bytes, got %d", len(raw))
		}
		return NewECDSASigner(secp256k1.PrivKeyFromBytes(raw)), nil
	default:
		return nil, fmt.Errorf("sign: unsupported algorithm %s", algorithm)
	}
}
