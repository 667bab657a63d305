package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// CodeManager derives the emailed six-digit second-factor codes. Each
// challenge gets its own TOTP secret whose period equals the challenge TTL,
// so the code is fixed for the challenge's lifetime. Secrets are stored
// AES-256-GCM encrypted.
type CodeManager struct {
	encryptionKey []byte
	issuer        string
	period        uint // seconds
}

// NewCodeManager returns a manager for codes valid for ttl (rounded down to
// whole seconds). encryptionKey must be 32 bytes.
func NewCodeManager(encryptionKey []byte, issuer string, ttl time.Duration) (*CodeManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}
	period := uint(ttl / time.Second)
	if period == 0 {
		return nil, fmt.Errorf("code ttl must be at least one second")
	}
	return &CodeManager{encryptionKey: encryptionKey, issuer: issuer, period: period}, nil
}

// NewChallenge creates a fresh secret and returns it encrypted along with the
// code valid at issuedAt.
func (cm *CodeManager) NewChallenge(accountName string, issuedAt time.Time) (encrypted, nonce []byte, code string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      cm.issuer,
		AccountName: accountName,
		Period:      cm.period,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to generate code secret: %w", err)
	}

	code, err = totp.GenerateCodeCustom(key.Secret(), issuedAt, cm.opts())
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to generate code: %w", err)
	}

	encrypted, nonce, err = cm.EncryptSecret([]byte(key.Secret()))
	if err != nil {
		return nil, nil, "", err
	}
	return encrypted, nonce, code, nil
}

// Validate reports whether code matches the challenge issued at issuedAt.
// Expiry is the caller's concern.
func (cm *CodeManager) Validate(encrypted, nonce []byte, code string, issuedAt time.Time) (bool, error) {
	secret, err := cm.DecryptSecret(encrypted, nonce)
	if err != nil {
		return false, err
	}

	valid, err := totp.ValidateCustom(code, string(secret), issuedAt, cm.opts())
	if errors.Is(err, otp.ErrValidateInputInvalidLength) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to validate code: %w", err)
	}
	return valid, nil
}

func (cm *CodeManager) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    cm.period,
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// EncryptSecret encrypts a secret using AES-256-GCM
func (cm *CodeManager) EncryptSecret(secret []byte) ([]byte, []byte, error) {
	gcm, err := cm.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, secret, nil), nonce, nil
}

func (cm *CodeManager) DecryptSecret(encrypted, nonce []byte) ([]byte, error) {
	gcm, err := cm.gcm()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length %d", len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return plaintext, nil
}

func (cm *CodeManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(cm.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
