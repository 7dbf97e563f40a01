package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncrypting_RoundTrip(t *testing.T) {
	inner := NewJSON[widget]()
	enc, err := NewEncrypting[widget](inner, "correct horse battery staple", []byte("cacheguard-demo-salt"))
	require.NoError(t, err)

	in := widget{Name: "bolt", Price: 150}
	blob, err := enc.Encode(in)
	require.NoError(t, err)

	out, err := enc.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncrypting_CiphertextDoesNotContainPlaintext(t *testing.T) {
	inner := NewJSON[widget]()
	enc, err := NewEncrypting[widget](inner, "passphrase", []byte("salt"))
	require.NoError(t, err)

	in := widget{Name: "super-secret-name", Price: 999}
	blob, err := enc.Encode(in)
	require.NoError(t, err)

	assert.NotContains(t, string(blob), "super-secret-name")
}

func TestEncrypting_WrongPassphraseFailsToDecode(t *testing.T) {
	inner := NewJSON[widget]()
	salt := []byte("salt")

	a, err := NewEncrypting[widget](inner, "passphrase-a", salt)
	require.NoError(t, err)
	b, err := NewEncrypting[widget](inner, "passphrase-b", salt)
	require.NoError(t, err)

	blob, err := a.Encode(widget{Name: "x", Price: 1})
	require.NoError(t, err)

	_, err = b.Decode(blob)
	assert.Error(t, err)
}

func TestEncrypting_RejectsTruncatedBlob(t *testing.T) {
	inner := NewJSON[widget]()
	enc, err := NewEncrypting[widget](inner, "passphrase", []byte("salt"))
	require.NoError(t, err)

	_, err = enc.Decode([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrInvalidBlobSize)
}

func TestEncrypting_RejectsUnknownVersion(t *testing.T) {
	inner := NewJSON[widget]()
	enc, err := NewEncrypting[widget](inner, "passphrase", []byte("salt"))
	require.NoError(t, err)

	blob, err := enc.Encode(widget{Name: "x", Price: 1})
	require.NoError(t, err)

	blob[0] = 0x99
	_, err = enc.Decode(blob)
	assert.ErrorIs(t, err, ErrUnsupportedBlobVersion)
}
