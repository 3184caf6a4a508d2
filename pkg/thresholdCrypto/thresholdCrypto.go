// Package thresholdCrypto provides the cryptographic primitives the client
// consumes: threshold BLS share combination and identity-based encryption on
// BLS12-381, ECDSA share combination on secp256k1, and deterministic HD
// public key derivation. The operations are defined as an interface so
// deployments can substitute hardware-backed or remote implementations.
package thresholdCrypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// SignatureShare is one node's contribution to a threshold BLS signature.
type SignatureShare struct {
	// ShareIndex is the node's share index in the signing committee
	ShareIndex uint64
	// Share is the hex-encoded compressed G2 signature share
	Share string
}

// IThresholdCrypto defines the primitive operations of the network's
// BLS12-381 threshold scheme.
type IThresholdCrypto interface {
	// CombineSignatureShares interpolates >= threshold shares into the
	// committee signature, returned as hex-encoded compressed G2.
	CombineSignatureShares(shares []SignatureShare) (string, error)

	// VerifySignature checks a combined signature over message under the
	// committee public key (hex-encoded compressed G1).
	VerifySignature(publicKeyHex string, message []byte, signatureHex string) error

	// Encrypt produces a ciphertext readable only by a holder of the
	// committee signature over identityParam.
	Encrypt(publicKeyHex string, data []byte, identityParam []byte) ([]byte, error)

	// VerifyAndDecryptWithSignatureShares combines the decryption shares,
	// verifies the resulting signature over identityParam and opens the
	// ciphertext.
	VerifyAndDecryptWithSignatureShares(publicKeyHex string, identityParam []byte, ciphertext []byte, shares []SignatureShare) ([]byte, error)
}

// Sha256Hex returns the lowercase hex SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
