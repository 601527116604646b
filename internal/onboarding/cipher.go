package onboarding

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// encryptedPrefix は暗号化済みフィールドの接頭辞です。
const encryptedPrefix = "enc:v1:"

var ErrDecrypt = errors.New("failed to decrypt field")

// FieldCipher は機微な文字列フィールドを XChaCha20-Poly1305 で暗号化・復号します。
// 形式: enc:v1:<base64url(nonce || ciphertext)>
type FieldCipher struct {
	key []byte
}

// NewFieldCipher は16進数の32バイト鍵から FieldCipher を作成します。
func NewFieldCipher(hexKey string) (*FieldCipher, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("decode field encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("field encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &FieldCipher{key: key}, nil
}

// Encrypt は平文を暗号化します。
func (c *FieldCipher) Encrypt(plain string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return encryptedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt は暗号化済みの値を復号します。接頭辞のない値はそのまま返します。
func (c *FieldCipher) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return value, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plain), nil
}

// DecryptForm はフォーム内の暗号化済みフィールドをその場で復号します。
// 対象は Aadhaar 番号、口座番号、IFSC、UPI ID です。
func (c *FieldCipher) DecryptForm(form *IndiaForm) error {
	if form == nil {
		return nil
	}
	var targets []*string
	if form.GovernmentIDs != nil {
		targets = append(targets, &form.GovernmentIDs.Aadhaar.AadhaarNumber)
	}
	if form.BankDetails != nil {
		targets = append(targets,
			&form.BankDetails.AccountNumber,
			&form.BankDetails.IFSCCode,
			&form.BankDetails.UPIID,
		)
	}
	for _, target := range targets {
		plain, err := c.Decrypt(*target)
		if err != nil {
			return err
		}
		*target = plain
	}
	return nil
}
