package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"regexp"

	"lukechampine.com/blake3"
)

// --- Hashing ---

// HashSHA256 is the wire hash: lowercase hex SHA-256.
func HashSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashBLAKE3 is the internal hash for ids, journal digests and RNG
// seeding. Never appears on the wire.
func HashBLAKE3(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashObject canonically encodes v and hashes it with SHA-256.
func HashObject(v any) string {
	return HashSHA256(MustCanonicalEncode(v))
}

// --- Identity ---

func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

func SignMessage(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

func VerifySignature(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// SignHex signs msg and returns the 128-char lowercase hex signature.
func SignHex(priv ed25519.PrivateKey, msg []byte) string {
	return hex.EncodeToString(ed25519.Sign(priv, msg))
}

// VerifyHex checks a hex signature under a hex-encoded public key.
func VerifyHex(pubHex string, msg []byte, sigHex string) bool {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return VerifySignature(ed25519.PublicKey(pub), msg, sig)
}

// --- Node Addresses ---

var addressPattern = regexp.MustCompile(`^NC[0-9a-f]{40}$`)

// DeriveAddress maps a public key to its 42-char node address:
// "NC" + hex of the first 20 bytes of sha512(publicKey).
func DeriveAddress(pub ed25519.PublicKey) string {
	sum := sha512.Sum512(pub)
	return "NC" + hex.EncodeToString(sum[:20])
}

func IsValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}
