package settings

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aristath/folio/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrSealedWithOtherCipher means the stored bundle was written by a different cipher
var ErrSealedWithOtherCipher = errors.New("credentials were sealed with a different cipher")

// Cipher seals and opens the credential bundle
type Cipher interface {
	Name() string
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// SecretStore persists broker credentials encrypted at rest
type SecretStore interface {
	// Load returns the stored credentials, or nil when none are stored
	Load(ctx context.Context) (*domain.BrokerCredentials, error)
	Save(ctx context.Context, creds domain.BrokerCredentials) error
	Clear(ctx context.Context) error
}

// AESGCMCipher seals with AES-256-GCM; the random nonce is prefixed to the ciphertext
type AESGCMCipher struct {
	aead cipher.AEAD
}

// NewAESGCMCipher creates a cipher from a 32 byte key
func NewAESGCMCipher(key []byte) (*AESGCMCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("AES-256 key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &AESGCMCipher{aead: aead}, nil
}

// Name implements Cipher
func (c *AESGCMCipher) Name() string { return "aesgcm" }

// Seal implements Cipher
func (c *AESGCMCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open implements Cipher
func (c *AESGCMCipher) Open(ciphertext []byte) ([]byte, error) {
	size := c.aead.NonceSize()
	if len(ciphertext) < size {
		return nil, errors.New("ciphertext too short")
	}
	plaintext, err := c.aead.Open(nil, ciphertext[:size], ciphertext[size:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open credentials: %w", err)
	}
	return plaintext, nil
}

// NopCipher stores the bundle unencrypted. Used when no secret key is configured.
type NopCipher struct{}

// Name implements Cipher
func (NopCipher) Name() string { return "plain" }

// Seal implements Cipher
func (NopCipher) Seal(plaintext []byte) ([]byte, error) { return plaintext, nil }

// Open implements Cipher
func (NopCipher) Open(ciphertext []byte) ([]byte, error) { return ciphertext, nil }

// NewCipher returns an AES-GCM cipher for a non-empty key and a NopCipher otherwise
func NewCipher(key []byte, log zerolog.Logger) (Cipher, error) {
	if len(key) == 0 {
		log.Warn().Msg("FOLIO_SECRET_KEY not set, broker credentials are stored unencrypted")
		return NopCipher{}, nil
	}
	return NewAESGCMCipher(key)
}

// SealedStore is a SecretStore that keeps a msgpack bundle, sealed by a Cipher,
// in the settings table as "<cipher>:<base64>"
type SealedStore struct {
	repo   *Repository
	cipher Cipher
	log    zerolog.Logger
}

// NewSealedStore creates a credential store over the settings repository
func NewSealedStore(repo *Repository, c Cipher, log zerolog.Logger) *SealedStore {
	return &SealedStore{
		repo:   repo,
		cipher: c,
		log:    log.With().Str("component", "secret_store").Str("cipher", c.Name()).Logger(),
	}
}

// Load implements SecretStore
func (s *SealedStore) Load(ctx context.Context) (*domain.BrokerCredentials, error) {
	value, err := s.repo.Get(KeyCredentials)
	if err != nil {
		return nil, err
	}
	if value == nil || *value == "" {
		return nil, nil
	}

	name, encoded, ok := strings.Cut(*value, ":")
	if !ok {
		return nil, errors.New("malformed credential bundle")
	}
	if name != s.cipher.Name() {
		return nil, fmt.Errorf("%w: stored %q, configured %q", ErrSealedWithOtherCipher, name, s.cipher.Name())
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credential bundle: %w", err)
	}
	plaintext, err := s.cipher.Open(sealed)
	if err != nil {
		return nil, err
	}

	var creds domain.BrokerCredentials
	if err := msgpack.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return &creds, nil
}

// Save implements SecretStore
func (s *SealedStore) Save(ctx context.Context, creds domain.BrokerCredentials) error {
	plaintext, err := msgpack.Marshal(&creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	sealed, err := s.cipher.Seal(plaintext)
	if err != nil {
		return err
	}

	value := s.cipher.Name() + ":" + base64.StdEncoding.EncodeToString(sealed)
	if err := s.repo.SetMany(ctx, map[string]string{KeyCredentials: value}); err != nil {
		return err
	}

	s.log.Info().Msg("Broker credentials stored")
	return nil
}

// Clear implements SecretStore
func (s *SealedStore) Clear(ctx context.Context) error {
	return s.repo.Delete(KeyCredentials)
}
