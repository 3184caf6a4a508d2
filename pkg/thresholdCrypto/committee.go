package thresholdCrypto

import (
	"encoding/hex"
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// LocalCommittee simulates a threshold signing committee by secret-sharing
// fresh keys in one process. TEST USE ONLY: a real deployment never holds the
// shares of more than one node.
type LocalCommittee struct {
	Threshold int
	Size      int

	// PublicKeyHex is the committee BLS public key, compressed G1 hex. It
	// plays the role of the network's subnet public key.
	PublicKeyHex string

	blsShares []fr.Element

	// EcdsaPublicKeyHex is the committee ECDSA public key, uncompressed hex.
	EcdsaPublicKeyHex string

	ecdsaKey *secp256k1.PrivateKey
}

// NewLocalCommittee secret-shares a fresh BLS key and generates an ECDSA key
// for a committee of size nodes with the given reconstruction threshold.
func NewLocalCommittee(threshold, size int) (*LocalCommittee, error) {
	if threshold < 1 || threshold > size {
		return nil, fmt.Errorf("threshold %d out of range for %d nodes", threshold, size)
	}

	coeffs := make([]fr.Element, threshold)
	for i := range coeffs {
		if _, err := coeffs[i].SetRandom(); err != nil {
			return nil, fmt.Errorf("failed to sample polynomial coefficient: %w", err)
		}
	}

	shares := make([]fr.Element, size)
	for i := range shares {
		var x fr.Element
		x.SetUint64(uint64(i) + 1)
		shares[i] = evalPoly(coeffs, x)
	}

	var masterBig big.Int
	coeffs[0].BigInt(&masterBig)
	_, _, g1, _ := bls12381.Generators()
	var pub bls12381.G1Affine
	pub.ScalarMultiplication(&g1, &masterBig)
	pubBytes := pub.Bytes()

	ecdsaKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	return &LocalCommittee{
		Threshold:         threshold,
		Size:              size,
		PublicKeyHex:      hex.EncodeToString(pubBytes[:]),
		blsShares:         shares,
		EcdsaPublicKeyHex: hex.EncodeToString(ecdsaKey.PubKey().SerializeUncompressed()),
		ecdsaKey:          ecdsaKey,
	}, nil
}

func evalPoly(coeffs []fr.Element, x fr.Element) fr.Element {
	var acc fr.Element
	for i := len(coeffs) - 1; i >= 0; i-- {
		acc.Mul(&acc, &x)
		acc.Add(&acc, &coeffs[i])
	}
	return acc
}

// SignShare produces node nodeIndex's BLS signature share over message.
func (c *LocalCommittee) SignShare(nodeIndex int, message []byte) (SignatureShare, error) {
	if nodeIndex < 0 || nodeIndex >= c.Size {
		return SignatureShare{}, fmt.Errorf("node index %d out of range", nodeIndex)
	}
	hashed, err := bls12381.HashToG2(message, []byte(signatureDst))
	if err != nil {
		return SignatureShare{}, fmt.Errorf("failed to hash message to curve: %w", err)
	}
	var shareBig big.Int
	c.blsShares[nodeIndex].BigInt(&shareBig)

	var sig bls12381.G2Affine
	sig.ScalarMultiplication(&hashed, &shareBig)
	sigBytes := sig.Bytes()
	return SignatureShare{
		ShareIndex: uint64(nodeIndex),
		Share:      hex.EncodeToString(sigBytes[:]),
	}, nil
}

// EcdsaSignShares signs digest with the committee ECDSA key and Shamir-shares
// the s scalar so that any Threshold shares recombine to the signature.
func (c *LocalCommittee) EcdsaSignShares(digest []byte) (string, []EcdsaSignatureShare, error) {
	if len(digest) != 32 {
		return "", nil, fmt.Errorf("digest must be 32 bytes")
	}

	nonce, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return "", nil, fmt.Errorf("failed to sample nonce: %w", err)
	}
	k := nonce.Key

	var bigR secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&k, &bigR)
	bigR.ToAffine()
	bigRPub := secp256k1.NewPublicKey(&bigR.X, &bigR.Y)

	var r secp256k1.ModNScalar
	r.SetByteSlice(bigRPub.X().Bytes())

	var z secp256k1.ModNScalar
	z.SetByteSlice(digest)

	// s = k^-1 (z + r d)
	var s, kInv secp256k1.ModNScalar
	s.Mul2(&r, &c.ecdsaKey.Key)
	s.Add(&z)
	kInv.InverseValNonConst(&k)
	s.Mul(&kInv)

	// Shamir-share s at evaluation points 1..Size.
	coeffs := make([]secp256k1.ModNScalar, c.Threshold)
	coeffs[0] = s
	for i := 1; i < c.Threshold; i++ {
		coeff, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return "", nil, fmt.Errorf("failed to sample sharing coefficient: %w", err)
		}
		coeffs[i] = coeff.Key
	}

	shares := make([]EcdsaSignatureShare, c.Size)
	for i := 0; i < c.Size; i++ {
		var x secp256k1.ModNScalar
		x.SetInt(uint32(i) + 1)
		share := evalPolyModN(coeffs, x)
		shareBytes := share.Bytes()
		shares[i] = EcdsaSignatureShare{
			ShareIndex: uint64(i),
			Share:      hex.EncodeToString(shareBytes[:]),
		}
	}

	return hex.EncodeToString(bigRPub.SerializeCompressed()), shares, nil
}

func evalPolyModN(coeffs []secp256k1.ModNScalar, x secp256k1.ModNScalar) secp256k1.ModNScalar {
	var acc secp256k1.ModNScalar
	for i := len(coeffs) - 1; i >= 0; i-- {
		acc.Mul(&x)
		acc.Add(&coeffs[i])
	}
	return acc
}
