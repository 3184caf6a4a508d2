package thresholdCrypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/crypto"
)

// EcdsaSignatureShare is one node's contribution to a threshold ECDSA
// signature: a Shamir share of the s scalar, computed against the common
// nonce commitment BigR.
type EcdsaSignatureShare struct {
	// ShareIndex is the node's share index in the signing committee
	ShareIndex uint64
	// Share is the hex-encoded 32-byte share of the s scalar
	Share string
}

// EcdsaSignature is a combined, canonical (low-s) secp256k1 signature.
type EcdsaSignature struct {
	// R is the 32-byte hex x coordinate of the nonce commitment
	R string `json:"r"`
	// S is the 32-byte hex canonical s scalar
	S string `json:"s"`
	// V is the recovery id (0 or 1)
	V byte `json:"recid"`
	// PublicKey is the uncompressed hex public key the signature verifies under
	PublicKey string `json:"publicKey"`
}

// EthSignature returns the signature in Ethereum's r || s || v layout.
func (sig *EcdsaSignature) EthSignature() ([]byte, error) {
	r, err := hex.DecodeString(sig.R)
	if err != nil {
		return nil, fmt.Errorf("invalid r: %w", err)
	}
	s, err := hex.DecodeString(sig.S)
	if err != nil {
		return nil, fmt.Errorf("invalid s: %w", err)
	}
	out := make([]byte, 65)
	copy(out[32-len(r):32], r)
	copy(out[64-len(s):64], s)
	out[64] = sig.V
	return out, nil
}

// CombineEcdsaShares interpolates the s shares at zero, normalises the result
// to the low-s form and determines the recovery id by recovering the expected
// public key from the digest.
//
// Parameters:
//   - bigRHex: compressed nonce commitment shared by all shares
//   - shares: >= threshold shares agreeing on the same digest
//   - digest: the 32-byte message digest that was signed
//   - publicKeyHex: the PKP public key (compressed or uncompressed hex)
//
// Returns:
//   - *EcdsaSignature: the canonical combined signature
//   - error: an error if the shares do not form a signature for publicKeyHex
func CombineEcdsaShares(bigRHex string, shares []EcdsaSignatureShare, digest []byte, publicKeyHex string) (*EcdsaSignature, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("no signature shares to combine")
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}

	bigRBytes, err := hex.DecodeString(stripHexPrefix(bigRHex))
	if err != nil {
		return nil, fmt.Errorf("invalid nonce commitment: %w", err)
	}
	bigR, err := secp256k1.ParsePubKey(bigRBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce commitment point: %w", err)
	}

	var r secp256k1.ModNScalar
	r.SetByteSlice(bigR.X().Bytes())
	if r.IsZero() {
		return nil, fmt.Errorf("nonce commitment reduces to zero")
	}

	indices, scalars, err := parseEcdsaShares(shares)
	if err != nil {
		return nil, err
	}

	var s secp256k1.ModNScalar
	for i := range scalars {
		lambda, err := lagrangeAtZeroModN(indices, i)
		if err != nil {
			return nil, err
		}
		var term secp256k1.ModNScalar
		term.Mul2(&scalars[i], lambda)
		s.Add(&term)
	}
	if s.IsZero() {
		return nil, fmt.Errorf("combined s scalar is zero")
	}
	if s.IsOverHalfOrder() {
		s.Negate()
	}

	expected, err := normalizePubKey(publicKeyHex)
	if err != nil {
		return nil, err
	}

	rBytes := r.Bytes()
	sBytes := s.Bytes()
	sig := &EcdsaSignature{
		R:         hex.EncodeToString(rBytes[:]),
		S:         hex.EncodeToString(sBytes[:]),
		PublicKey: hex.EncodeToString(expected),
	}

	// The recovery id is whichever value recovers the expected key.
	compact := make([]byte, 65)
	copy(compact[:32], rBytes[:])
	copy(compact[32:64], sBytes[:])
	for recid := byte(0); recid < 2; recid++ {
		compact[64] = recid
		recovered, err := crypto.Ecrecover(digest, compact)
		if err != nil {
			continue
		}
		if string(recovered) == string(expected) {
			sig.V = recid
			return sig, nil
		}
	}
	return nil, fmt.Errorf("combined signature does not recover the expected public key")
}

func parseEcdsaShares(shares []EcdsaSignatureShare) ([]uint32, []secp256k1.ModNScalar, error) {
	indices := make([]uint32, len(shares))
	scalars := make([]secp256k1.ModNScalar, len(shares))
	seen := make(map[uint64]struct{}, len(shares))
	for i, share := range shares {
		if _, dup := seen[share.ShareIndex]; dup {
			return nil, nil, fmt.Errorf("duplicate share index %d", share.ShareIndex)
		}
		seen[share.ShareIndex] = struct{}{}

		raw, err := hex.DecodeString(stripHexPrefix(share.Share))
		if err != nil {
			return nil, nil, fmt.Errorf("share %d is not hex: %w", share.ShareIndex, err)
		}
		if overflow := scalars[i].SetByteSlice(raw); overflow {
			return nil, nil, fmt.Errorf("share %d is not a canonical scalar", share.ShareIndex)
		}
		indices[i] = uint32(share.ShareIndex) + 1
	}
	return indices, scalars, nil
}

// lagrangeAtZeroModN computes l_i(0) over the evaluation points in indices.
// The points are small integers, so the differences are computed in plain
// integer arithmetic before reduction.
func lagrangeAtZeroModN(indices []uint32, i int) (*secp256k1.ModNScalar, error) {
	var num, den secp256k1.ModNScalar
	num.SetInt(1)
	den.SetInt(1)
	for j := range indices {
		if j == i {
			continue
		}
		if indices[j] == indices[i] {
			return nil, fmt.Errorf("degenerate share indices")
		}
		var x secp256k1.ModNScalar
		x.SetInt(indices[j])
		num.Mul(&x)

		var diff secp256k1.ModNScalar
		if indices[j] > indices[i] {
			diff.SetInt(indices[j] - indices[i])
		} else {
			diff.SetInt(indices[i] - indices[j])
			diff.Negate()
		}
		den.Mul(&diff)
	}
	var inv secp256k1.ModNScalar
	inv.InverseValNonConst(&den)
	num.Mul(&inv)
	return &num, nil
}

// normalizePubKey accepts compressed or uncompressed hex (with or without the
// 0x prefix) and returns the uncompressed serialisation.
func normalizePubKey(pubHex string) ([]byte, error) {
	cleaned := strings.TrimPrefix(strings.ToLower(pubHex), "0x")
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("public key is not hex: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	return pub.SerializeUncompressed(), nil
}
