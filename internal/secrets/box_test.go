package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_EncryptDecryptRoundTrip(t *testing.T) {
	box, err := NewBox("long-lived-app-secret")
	require.NoError(t, err)

	plaintext := []byte(`{"email":"user@example.com","password":"hunter2"}`)

	encoded, err := box.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "hunter2")

	decoded, err := box.Decrypt(encoded)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decoded)
}

func TestBox_EncryptProducesDistinctCiphertexts(t *testing.T) {
	box, err := NewBox("long-lived-app-secret")
	require.NoError(t, err)

	// 随机 nonce：相同明文加密两次不应得到相同密文
	a, err := box.Encrypt([]byte("same payload"))
	require.NoError(t, err)
	b, err := box.Encrypt([]byte("same payload"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBox_DecryptWithWrongKeyFails(t *testing.T) {
	box1, err := NewBox("secret-one")
	require.NoError(t, err)
	box2, err := NewBox("secret-two")
	require.NoError(t, err)

	encoded, err := box1.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = box2.Decrypt(encoded)
	assert.Error(t, err)
}

func TestBox_DecryptGarbageFails(t *testing.T) {
	box, err := NewBox("secret")
	require.NoError(t, err)

	_, err = box.Decrypt("not-base64!!!")
	assert.Error(t, err)

	_, err = box.Decrypt("c2hvcnQ=") // 合法 base64 但短于 nonce
	assert.Error(t, err)
}

func TestNewBox_EmptySecret(t *testing.T) {
	_, err := NewBox("")
	assert.Error(t, err)
}
