// Package sessionKeys manages the Ed25519 session key pair the client uses to
// mint per-node authorisations without re-prompting the user wallet.
package sessionKeys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lit-protocol/lit-go-sdk/pkg/auth"
	"github.com/lit-protocol/lit-go-sdk/pkg/storage"
	"go.uber.org/zap"
)

// ISessionKeyStore defines the interface for obtaining the session key pair.
type ISessionKeyStore interface {
	// GetSessionKey returns the persisted session key pair, generating and
	// persisting a fresh one on miss or parse failure.
	GetSessionKey() (*auth.SessionKeyPair, error)
	// RotateSessionKey discards the persisted pair and generates a new one.
	RotateSessionKey() (*auth.SessionKeyPair, error)
}

// Store implements ISessionKeyStore on top of a persistence adapter. The pair
// lives in the storage.SessionKeyKey slot; persistence failures are non-fatal
// and only logged, the generated pair is still returned.
type Store struct {
	logger  *zap.Logger
	storage storage.IPersistenceAdapter
}

// NewStore creates a session key store backed by the given adapter.
func NewStore(adapter storage.IPersistenceAdapter, logger *zap.Logger) *Store {
	return &Store{
		logger:  logger,
		storage: adapter,
	}
}

func (s *Store) GetSessionKey() (*auth.SessionKeyPair, error) {
	raw, err := s.storage.Get(storage.SessionKeyKey)
	if err == nil {
		var kp auth.SessionKeyPair
		if jsonErr := json.Unmarshal([]byte(raw), &kp); jsonErr == nil && auth.IsSessionKeyPair(&kp) {
			return &kp, nil
		}
		s.logger.Sugar().Warnw("Stored session key is not a valid key pair, regenerating",
			zap.String("slot", storage.SessionKeyKey),
		)
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		s.logger.Sugar().Warnw("Failed to read session key slot, regenerating",
			zap.String("slot", storage.SessionKeyKey),
			zap.Error(err),
		)
	}

	return s.RotateSessionKey()
}

func (s *Store) RotateSessionKey() (*auth.SessionKeyPair, error) {
	kp, err := GenerateSessionKeyPair()
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(kp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session key pair: %w", err)
	}
	if err := s.storage.Set(storage.SessionKeyKey, string(encoded)); err != nil {
		// Persistence is best-effort: the pair is still usable for this
		// process, the next process will simply generate a new one.
		s.logger.Sugar().Warnw("Failed to persist session key pair",
			zap.String("slot", storage.SessionKeyKey),
			zap.Error(err),
		)
	}
	return kp, nil
}

// GenerateSessionKeyPair creates a fresh Ed25519 key pair encoded as lowercase
// hex.
func GenerateSessionKeyPair() (*auth.SessionKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &auth.SessionKeyPair{
		PublicKey: hex.EncodeToString(pub),
		SecretKey: hex.EncodeToString(priv),
	}, nil
}

// SignDetached signs msg with the session secret key and returns the detached
// signature as lowercase hex.
func SignDetached(kp *auth.SessionKeyPair, msg []byte) (string, error) {
	secret, err := hex.DecodeString(kp.SecretKey)
	if err != nil {
		return "", fmt.Errorf("failed to decode session secret key: %w", err)
	}
	if len(secret) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("session secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(secret))
	}
	sig := ed25519.Sign(ed25519.PrivateKey(secret), msg)
	return hex.EncodeToString(sig), nil
}

// VerifyDetached checks a detached session signature against the session
// public key.
func VerifyDetached(publicKeyHex string, msg []byte, sigHex string) error {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("failed to decode session public key: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("failed to decode session signature: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("session public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return fmt.Errorf("session signature does not verify")
	}
	return nil
}
