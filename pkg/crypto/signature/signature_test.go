package signature

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rekamed/pkg/domain-errors"
)

func TestVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	msg := []byte("rekamedchain/consent/v1\naction=grant\nrequest=r1")
	sig, err := Sign(key, msg)
	require.NoError(t, err)
	v := NewVerifier()

	t.Run("uncompressed key", func(t *testing.T) {
		assert.NoError(t, v.Verify(PublicKeyHex(key), msg, sig))
	})

	t.Run("compressed key and address", func(t *testing.T) {
		compressed := common.Bytes2Hex(crypto.CompressPubkey(&key.PublicKey))
		assert.NoError(t, v.Verify(compressed, msg, sig))
		assert.NoError(t, v.Verify(crypto.PubkeyToAddress(key.PublicKey).Hex(), msg, sig))
	})

	t.Run("v of 0 or 1 is accepted", func(t *testing.T) {
		raw := common.FromHex(sig)
		raw[64] -= 27
		assert.NoError(t, v.Verify(PublicKeyHex(key), msg, common.Bytes2Hex(raw)))
	})

	t.Run("different message is rejected", func(t *testing.T) {
		err := v.Verify(PublicKeyHex(key), []byte("rekamedchain/consent/v1\naction=deny\nrequest=r1"), sig)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	})

	t.Run("different key is rejected", func(t *testing.T) {
		err := v.Verify(PublicKeyHex(other), msg, sig)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	})

	t.Run("garbage signature is rejected without panic", func(t *testing.T) {
		for _, bad := range []string{"", "0x1234", "zz", "0x" + common.Bytes2Hex(make([]byte, 65))} {
			err := v.Verify(PublicKeyHex(key), msg, bad)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidSignature), bad)
		}
	})

	t.Run("unusable registered key", func(t *testing.T) {
		err := v.Verify("0xdeadbeef", msg, sig)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	})
}

func TestParseKeyRejectsWrongLength(t *testing.T) {
	_, err := ParseKey("0x0102")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
