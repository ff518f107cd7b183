package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EncryptionService encrypts and decrypts secrets at rest.
type EncryptionService interface {
	// Encrypt takes plaintext and a hex-encoded 32-byte key and returns
	// hex(iv):hex(ciphertext).
	Encrypt(plainText string, keyHex string) (string, error)
	// Decrypt reverses Encrypt. It fails closed on tampered input.
	Decrypt(cipherText string, keyHex string) (string, error)
}

type aesGCMEncryptionService struct{}

// NewAESGCMEncryptionService creates an EncryptionService using AES-256-GCM.
func NewAESGCMEncryptionService() EncryptionService {
	return &aesGCMEncryptionService{}
}

func newGCM(keyHex string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex key: %w", err)
	}
	if len(key) != 32 { // AES-256
		return nil, errors.New("invalid key length: must be 32 bytes for AES-256")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher block: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts plaintext with a random IV and frames the output as
// iv:cipher, both hex encoded. The GCM tag rides inside the cipher part.
func (s *aesGCMEncryptionService) Encrypt(plainText string, keyHex string) (string, error) {
	gcm, err := newGCM(keyHex)
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	cipherText := gcm.Seal(nil, iv, []byte(plainText), nil)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(cipherText), nil
}

// Decrypt decrypts an iv:cipher framed value. A wrong key or any tampering
// of either part fails authentication and surfaces as an error.
func (s *aesGCMEncryptionService) Decrypt(cipherText string, keyHex string) (string, error) {
	gcm, err := newGCM(keyHex)
	if err != nil {
		return "", err
	}

	parts := strings.SplitN(cipherText, ":", 2)
	if len(parts) != 2 {
		return "", errors.New("invalid ciphertext format: expected iv:cipher")
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("failed to decode IV: %w", err)
	}
	if len(iv) != gcm.NonceSize() {
		return "", errors.New("invalid IV length")
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	plainText, err := gcm.Open(nil, iv, data, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plainText), nil
}

var _ EncryptionService = (*aesGCMEncryptionService)(nil)
