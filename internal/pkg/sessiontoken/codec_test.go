package sessiontoken

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"accesscore-service/internal/domain/session"
	xerrors "accesscore-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() *session.Record {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &session.Record{
		SubjectID:         "subj-01",
		Email:             "jane@example.com",
		Username:          "jane",
		Roles:             []string{"member", "auditor"},
		OrganizationIDs:   []string{"org-1"},
		SessionID:         "01JD0YB3S8Z2V4N6Q8RTWXK5MA",
		CreatedAt:         now.Add(-time.Minute),
		LastActivityAt:    now,
		DeviceFingerprint: "fp-abc",
		OriginSource:      session.OriginInteractiveLogin,
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)

	record := testRecord()
	token, err := codec.Encode(record, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, record.SubjectID, got.SubjectID)
	assert.Equal(t, record.SessionID, got.SessionID)
	assert.Equal(t, record.Roles, got.Roles)
	assert.Equal(t, record.OrganizationIDs, got.OrganizationIDs)
	assert.True(t, record.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, record.OriginSource, got.OriginSource)
}

func TestCodecRequiresSecret(t *testing.T) {
	_, err := NewCodec("")
	require.Error(t, err)
}

// Flipping any single byte of the encoded token must make Decode fail,
// and fail with the same indistinguishable error.
func TestCodecTamperEvidence(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)

	token, err := codec.Encode(testRecord(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	for i := 0; i < len(token); i++ {
		for _, mask := range []byte{0x01, 0x80} {
			mutated := []byte(token)
			mutated[i] ^= mask
			_, err := codec.Decode(string(mutated))
			assert.ErrorIs(t, err, xerrors.ErrInvalidSession, "byte %d mask %#x accepted", i, mask)
		}
	}
}

func TestCodecTruncatedToken(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)

	token, err := codec.Encode(testRecord(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	for _, tok := range []string{"", "abc", token[:8], token[:len(token)/2]} {
		_, err := codec.Decode(tok)
		assert.ErrorIs(t, err, xerrors.ErrInvalidSession)
	}
}

func TestCodecRejectsExpired(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)

	token, err := codec.Encode(testRecord(), time.Now().Add(-time.Second))
	require.NoError(t, err)

	_, err = codec.Decode(token)
	assert.ErrorIs(t, err, xerrors.ErrInvalidSession)
}

func TestCodecRejectsForeignKey(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)
	other, err := NewCodec("another-secret")
	require.NoError(t, err)

	token, err := codec.Encode(testRecord(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = other.Decode(token)
	assert.ErrorIs(t, err, xerrors.ErrInvalidSession)
}

// A payload sealed correctly under the cipher key but carrying a
// signature over different identity fields must still be rejected. The
// signature is what survives a hypothetical cipher-layer bug.
func TestCodecRejectsSignatureMismatch(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)

	record := testRecord()
	forged := *record
	forged.SubjectID = "someone-else"

	// Seal the forged record alongside the original record's signature.
	body := payload{
		Record:    forged,
		Signature: codec.sign(record),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	plaintext, err := json.Marshal(body)
	require.NoError(t, err)

	block, err := aes.NewCipher(codec.encKey)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	nonce := make([]byte, gcm.NonceSize())
	_, err = rand.Read(nonce)
	require.NoError(t, err)
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	_, err = codec.Decode(base64.RawURLEncoding.EncodeToString(sealed))
	assert.ErrorIs(t, err, xerrors.ErrInvalidSession)
}
