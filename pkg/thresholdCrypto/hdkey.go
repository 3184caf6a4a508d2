package thresholdCrypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// hdDst separates HD derivation digests from every other use of SHA-256 in
// the protocol.
const hdDst = "LIT_HD_KEY_ID_K256_XMD:SHA-256_SSWU_RO_NUL_"

// ComputeHDPubKey derives the public key of a claimed key identity from the
// network's root public keys. The derivation is deterministic in
// (derivedKeyId, rootKeys): pub = sum_j h_j * P_j with
// h_j = SHA-256(dst || keyId || j || P_j) reduced mod n. Every client and
// node computes the same key without interaction.
//
// Parameters:
//   - derivedKeyId: hex id of the claimed key
//   - rootHDKeys: the network's root public keys, compressed hex
//
// Returns:
//   - string: the derived public key, uncompressed hex
//   - error: an error if any input is malformed
func ComputeHDPubKey(derivedKeyId string, rootHDKeys []string) (string, error) {
	if len(rootHDKeys) == 0 {
		return "", fmt.Errorf("no root HD keys")
	}
	keyId, err := hex.DecodeString(stripHexPrefix(derivedKeyId))
	if err != nil {
		return "", fmt.Errorf("derived key id is not hex: %w", err)
	}

	var acc secp256k1.JacobianPoint
	for j, rootHex := range rootHDKeys {
		raw, err := hex.DecodeString(stripHexPrefix(rootHex))
		if err != nil {
			return "", fmt.Errorf("root key %d is not hex: %w", j, err)
		}
		root, err := secp256k1.ParsePubKey(raw)
		if err != nil {
			return "", fmt.Errorf("root key %d invalid: %w", j, err)
		}

		h := sha256.New()
		h.Write([]byte(hdDst))
		h.Write(keyId)
		h.Write([]byte{byte(j)})
		h.Write(root.SerializeCompressed())

		var tweak secp256k1.ModNScalar
		tweak.SetByteSlice(h.Sum(nil))
		if tweak.IsZero() {
			return "", fmt.Errorf("degenerate tweak for root key %d", j)
		}

		var rootPoint, term secp256k1.JacobianPoint
		root.AsJacobian(&rootPoint)
		secp256k1.ScalarMultNonConst(&tweak, &rootPoint, &term)
		secp256k1.AddNonConst(&acc, &term, &acc)
	}

	if (acc.X.IsZero() && acc.Y.IsZero()) || acc.Z.IsZero() {
		return "", fmt.Errorf("derived key is the point at infinity")
	}
	acc.ToAffine()
	derived := secp256k1.NewPublicKey(&acc.X, &acc.Y)
	return hex.EncodeToString(derived.SerializeUncompressed()), nil
}
