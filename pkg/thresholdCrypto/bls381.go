package thresholdCrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"golang.org/x/crypto/chacha20poly1305"
)

// signatureDst is the hash-to-curve domain separation tag shared with the
// node-side signer. Signatures live in G2, public keys in G1.
const signatureDst = "BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_"

// Bls381Suite implements IThresholdCrypto on the BLS12-381 pairing curve.
// The zero value is ready to use.
type Bls381Suite struct{}

// NewBls381Suite returns the default threshold crypto suite.
func NewBls381Suite() *Bls381Suite {
	return &Bls381Suite{}
}

// CombineSignatureShares Lagrange-interpolates the shares at zero. Share
// indices are zero-based on the wire; evaluation points are shareIndex+1.
// Duplicate indices are rejected, order of the input does not matter.
func (s *Bls381Suite) CombineSignatureShares(shares []SignatureShare) (string, error) {
	if len(shares) == 0 {
		return "", fmt.Errorf("no signature shares to combine")
	}

	sorted := make([]SignatureShare, len(shares))
	copy(sorted, shares)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ShareIndex < sorted[j].ShareIndex })

	points := make([]bls12381.G2Affine, len(sorted))
	xs := make([]fr.Element, len(sorted))
	seen := make(map[uint64]struct{}, len(sorted))
	for i, share := range sorted {
		if _, dup := seen[share.ShareIndex]; dup {
			return "", fmt.Errorf("duplicate share index %d", share.ShareIndex)
		}
		seen[share.ShareIndex] = struct{}{}

		raw, err := hex.DecodeString(share.Share)
		if err != nil {
			return "", fmt.Errorf("share %d is not hex: %w", share.ShareIndex, err)
		}
		if _, err := points[i].SetBytes(raw); err != nil {
			return "", fmt.Errorf("share %d is not a valid G2 point: %w", share.ShareIndex, err)
		}
		xs[i].SetUint64(share.ShareIndex + 1)
	}

	var combined bls12381.G2Jac
	for i := range sorted {
		lambda, err := lagrangeCoefficientAtZero(xs, i)
		if err != nil {
			return "", err
		}
		var lambdaBig big.Int
		lambda.BigInt(&lambdaBig)

		var point, term bls12381.G2Jac
		point.FromAffine(&points[i])
		term.ScalarMultiplication(&point, &lambdaBig)
		combined.AddAssign(&term)
	}

	var affine bls12381.G2Affine
	affine.FromJacobian(&combined)
	out := affine.Bytes()
	return hex.EncodeToString(out[:]), nil
}

// lagrangeCoefficientAtZero computes l_i(0) = prod_{j != i} x_j / (x_j - x_i).
func lagrangeCoefficientAtZero(xs []fr.Element, i int) (fr.Element, error) {
	var num, den fr.Element
	num.SetUint64(1)
	den.SetUint64(1)
	for j := range xs {
		if j == i {
			continue
		}
		num.Mul(&num, &xs[j])
		var diff fr.Element
		diff.Sub(&xs[j], &xs[i])
		den.Mul(&den, &diff)
	}
	if den.IsZero() {
		return fr.Element{}, fmt.Errorf("degenerate share indices")
	}
	var inv fr.Element
	inv.Inverse(&den)
	num.Mul(&num, &inv)
	return num, nil
}

// VerifySignature checks e(g1, sig) == e(pub, H(message)).
func (s *Bls381Suite) VerifySignature(publicKeyHex string, message []byte, signatureHex string) error {
	pub, err := parseG1(publicKeyHex)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	sig, err := parseG2(signatureHex)
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	hashed, err := bls12381.HashToG2(message, []byte(signatureDst))
	if err != nil {
		return fmt.Errorf("failed to hash message to curve: %w", err)
	}

	_, _, g1, _ := bls12381.Generators()
	var g1Neg bls12381.G1Affine
	g1Neg.Neg(&g1)

	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{g1Neg, pub},
		[]bls12381.G2Affine{sig, hashed},
	)
	if err != nil {
		return fmt.Errorf("pairing check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("signature does not verify under committee public key")
	}
	return nil
}

// Encrypt implements identity-based encryption bound to identityParam: the
// ephemeral point rG1 is published with the payload, the payload key is
// derived from e(pub^r, H(identityParam)), and only the committee signature
// over identityParam reproduces that pairing value.
//
// Ciphertext layout: compressed G1 (48 bytes) || XChaCha20 nonce || AEAD body.
func (s *Bls381Suite) Encrypt(publicKeyHex string, data []byte, identityParam []byte) ([]byte, error) {
	pub, err := parseG1(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid subnet public key: %w", err)
	}
	identity, err := bls12381.HashToG2(identityParam, []byte(signatureDst))
	if err != nil {
		return nil, fmt.Errorf("failed to hash identity to curve: %w", err)
	}

	var r fr.Element
	if _, err := r.SetRandom(); err != nil {
		return nil, fmt.Errorf("failed to sample ephemeral scalar: %w", err)
	}
	var rBig big.Int
	r.BigInt(&rBig)

	_, _, g1, _ := bls12381.Generators()
	var ephemeral bls12381.G1Affine
	ephemeral.ScalarMultiplication(&g1, &rBig)

	var blinded bls12381.G1Affine
	blinded.ScalarMultiplication(&pub, &rBig)
	shared, err := bls12381.Pair([]bls12381.G1Affine{blinded}, []bls12381.G2Affine{identity})
	if err != nil {
		return nil, fmt.Errorf("pairing failed: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(&shared))
	if err != nil {
		return nil, fmt.Errorf("failed to build AEAD: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to sample nonce: %w", err)
	}

	ephemeralBytes := ephemeral.Bytes()
	out := make([]byte, 0, len(ephemeralBytes)+len(nonce)+len(data)+aead.Overhead())
	out = append(out, ephemeralBytes[:]...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, data, identityParam)
	return out, nil
}

// VerifyAndDecryptWithSignatureShares combines the shares into the committee
// signature over identityParam, verifies it, and opens the ciphertext with
// the pairing of the ephemeral point and that signature.
func (s *Bls381Suite) VerifyAndDecryptWithSignatureShares(
	publicKeyHex string,
	identityParam []byte,
	ciphertext []byte,
	shares []SignatureShare,
) ([]byte, error) {
	combined, err := s.CombineSignatureShares(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to combine decryption shares: %w", err)
	}
	if err := s.VerifySignature(publicKeyHex, identityParam, combined); err != nil {
		return nil, fmt.Errorf("combined decryption signature invalid: %w", err)
	}

	headerLen := bls12381.SizeOfG1AffineCompressed + chacha20poly1305.NonceSizeX
	if len(ciphertext) < headerLen {
		return nil, fmt.Errorf("ciphertext too short: %d bytes", len(ciphertext))
	}
	var ephemeral bls12381.G1Affine
	if _, err := ephemeral.SetBytes(ciphertext[:bls12381.SizeOfG1AffineCompressed]); err != nil {
		return nil, fmt.Errorf("invalid ephemeral point: %w", err)
	}
	nonce := ciphertext[bls12381.SizeOfG1AffineCompressed:headerLen]

	sig, err := parseG2(combined)
	if err != nil {
		return nil, fmt.Errorf("invalid combined signature: %w", err)
	}
	shared, err := bls12381.Pair([]bls12381.G1Affine{ephemeral}, []bls12381.G2Affine{sig})
	if err != nil {
		return nil, fmt.Errorf("pairing failed: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(&shared))
	if err != nil {
		return nil, fmt.Errorf("failed to build AEAD: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext[headerLen:], identityParam)
	if err != nil {
		return nil, fmt.Errorf("failed to open ciphertext: %w", err)
	}
	return plaintext, nil
}

func deriveKey(shared *bls12381.GT) []byte {
	sum := sha256.Sum256(shared.Marshal())
	return sum[:]
}

func parseG1(hexStr string) (bls12381.G1Affine, error) {
	var point bls12381.G1Affine
	raw, err := hex.DecodeString(stripHexPrefix(hexStr))
	if err != nil {
		return point, err
	}
	if _, err := point.SetBytes(raw); err != nil {
		return point, err
	}
	return point, nil
}

func parseG2(hexStr string) (bls12381.G2Affine, error) {
	var point bls12381.G2Affine
	raw, err := hex.DecodeString(stripHexPrefix(hexStr))
	if err != nil {
		return point, err
	}
	if _, err := point.SetBytes(raw); err != nil {
		return point, err
	}
	return point, nil
}

func stripHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
