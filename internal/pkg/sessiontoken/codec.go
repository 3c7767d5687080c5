// internal/pkg/sessiontoken/codec.go
package sessiontoken

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"accesscore-service/internal/domain/session"
	xerrors "accesscore-service/internal/pkg/errors"

	"golang.org/x/crypto/scrypt"
)

// Application-wide KDF salt. Fixed on purpose: every instance must derive
// the same keys from the shared APP_SECRET.
const kdfSalt = "accesscore.sessiontoken.v1"

// scrypt cost parameters. Deliberately slow so a leaked token corpus
// cannot be brute forced offline against a weak secret.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// payload is what actually gets sealed inside the token: the record, an
// independent keyed signature over its immutable fields, and the absolute
// expiry instant.
type payload struct {
	Record    session.Record `json:"record"`
	Signature string         `json:"signature"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Codec seals session records into opaque tokens and opens them again.
// AES-256-GCM provides confidentiality and integrity in one primitive;
// the separate HMAC signature over the immutable identity fields is
// defense in depth against mistakes in the cipher layer.
type Codec struct {
	encKey  []byte
	signKey []byte
}

// NewCodec derives the encryption and signing keys from the application
// secret. An empty secret is a configuration error and aborts startup.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("session token secret is required")
	}

	// One scrypt pass, split into independent cipher and MAC keys.
	derived, err := scrypt.Key([]byte(secret), []byte(kdfSalt), scryptN, scryptR, scryptP, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to derive session keys: %w", err)
	}

	return &Codec{
		encKey:  derived[:32],
		signKey: derived[32:],
	}, nil
}

// Encode seals a record into an opaque token that expires at expiresAt.
func (c *Codec) Encode(record *session.Record, expiresAt time.Time) (string, error) {
	body := payload{
		Record:    *record,
		Signature: c.sign(record),
		ExpiresAt: expiresAt,
	}

	plaintext, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session payload: %w", err)
	}

	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return "", fmt.Errorf("failed to init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to init gcm: %w", err)
	}

	// Fresh random IV per token; never reused under the same key.
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a token and returns the record it carries. Every failure
// mode (bad encoding, bad tag, signature mismatch, expiry, malformed
// payload) collapses into ErrInvalidSession so callers cannot be used as
// a tamper oracle.
func (c *Codec) Decode(token string) (*session.Record, error) {
	// Strict mode rejects non-canonical trailing bits, so a flipped byte
	// anywhere in the token surfaces as a decode failure at worst.
	raw, err := base64.RawURLEncoding.Strict().DecodeString(token)
	if err != nil {
		return nil, xerrors.ErrInvalidSession
	}

	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return nil, xerrors.ErrInvalidSession
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, xerrors.ErrInvalidSession
	}
	if len(raw) < gcm.NonceSize() {
		return nil, xerrors.ErrInvalidSession
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, xerrors.ErrInvalidSession
	}

	var body payload
	if err := json.Unmarshal(plaintext, &body); err != nil {
		return nil, xerrors.ErrInvalidSession
	}
	if body.Record.SubjectID == "" || body.Record.SessionID == "" {
		return nil, xerrors.ErrInvalidSession
	}

	expected := c.sign(&body.Record)
	if !hmac.Equal([]byte(expected), []byte(body.Signature)) {
		return nil, xerrors.ErrInvalidSession
	}

	if !body.ExpiresAt.After(time.Now()) {
		return nil, xerrors.ErrInvalidSession
	}

	return &body.Record, nil
}

// sign computes the keyed hash over the canonical string of the fields
// that never change for a session's lifetime.
func (c *Codec) sign(record *session.Record) string {
	canonical := fmt.Sprintf("%s|%s|%d", record.SubjectID, record.SessionID, record.CreatedAt.UnixNano())
	mac := hmac.New(sha256.New, c.signKey)
	mac.Write([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
