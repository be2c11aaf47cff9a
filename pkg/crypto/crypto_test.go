package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	sealed, err := Seal("hunter2", []byte(`{"accessToken":"a"}`))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "accessToken")

	plain, err := Open("hunter2", sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"accessToken":"a"}`, string(plain))
}

func TestOpen_WrongPassphrase(t *testing.T) {
	sealed, err := Seal("hunter2", []byte("secret"))
	require.NoError(t, err)

	_, err = Open("hunter3", sealed)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = Open("hunter2", sealed[:10])
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestFingerprint(t *testing.T) {
	assert.Empty(t, Fingerprint(""))
	assert.Len(t, Fingerprint("token"), 12)
	assert.Equal(t, Fingerprint("token"), Fingerprint("token"))
	assert.NotEqual(t, Fingerprint("token"), Fingerprint("other"))
}
