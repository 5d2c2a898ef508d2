package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	plaintext := []byte("correct horse battery staple mnemonic seed phrase")
	blob, err := Encrypt(plaintext, "hunter2")
	require.NoError(t, err)

	got, err := Decrypt(blob, "hunter2")
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecrypt_WrongPasswordFails(t *testing.T) {
	blob, err := Encrypt([]byte("secret"), "correct")
	require.NoError(t, err)

	_, err = Decrypt(blob, "wrong")
	require.Error(t, err)
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	blob, err := Encrypt([]byte("payload"), "pw")
	require.NoError(t, err)

	data := Serialize(blob)
	restored, err := Deserialize(data)
	require.NoError(t, err)

	out, err := Decrypt(restored, "pw")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), out)
}

func TestClearBytes_ZeroesSlice(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	ClearBytes(b)
	require.Equal(t, []byte{0, 0, 0, 0}, b)
}
