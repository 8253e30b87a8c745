package protocol

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"testing"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthDigest(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Notch", "4ed1f46bbe04bc756bcb17c0c7ce3e4632f06a48"},
		{"jeb_", "-7c9d5b0044c130109a5d7b5fb5c317c02b4e28c1"},
		{"simon", "88e16a1019277b15d58faf0541e11910eb756f6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AuthDigest(tt.name, nil, nil))
		})
	}
}

func TestAuthDigestConcatenatesInputs(t *testing.T) {
	assert.Equal(t, AuthDigest("Notch", nil, nil), AuthDigest("No", []byte("tc"), []byte("h")))
}

func TestNewSharedSecret(t *testing.T) {
	a, err := NewSharedSecret()
	require.NoError(t, err)
	b, err := NewSharedSecret()
	require.NoError(t, err)
	assert.Len(t, a, SharedSecretSize)
	assert.NotEqual(t, a, b)
}

func TestEncryptForServer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	secret := []byte("0123456789abcdef")
	token := []byte{9, 8, 7, 6}
	encSecret, encToken, err := encryptForServer(der, secret, token)
	require.NoError(t, err)

	gotSecret, err := rsa.DecryptPKCS1v15(rand.Reader, key, encSecret)
	require.NoError(t, err)
	gotToken, err := rsa.DecryptPKCS1v15(rand.Reader, key, encToken)
	require.NoError(t, err)
	assert.Equal(t, secret, gotSecret)
	assert.Equal(t, token, gotToken)

	_, _, err = encryptForServer([]byte("not a key"), secret, token)
	assert.Error(t, err)
}

func TestStreamsRoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef")
	enc, _, err := newStreams(secret)
	require.NoError(t, err)
	_, dec, err := newStreams(secret)
	require.NoError(t, err)

	plain := []byte("keep alive")
	buf := make([]byte, len(plain))
	enc.XORKeyStream(buf, plain)
	assert.NotEqual(t, plain, buf)
	dec.XORKeyStream(buf, buf)
	assert.Equal(t, plain, buf)
}

func TestParsers(t *testing.T) {
	req, err := ParseEncryptionRequest(pk.Marshal(PktEncryptionRequest,
		pk.String("srv"), pk.ByteArray{1, 2}, pk.ByteArray{3}))
	require.NoError(t, err)
	assert.Equal(t, &EncryptionRequest{ServerID: "srv", PublicKey: []byte{1, 2}, VerifyToken: []byte{3}}, req)

	reason, err := ParseDisconnect(pk.Marshal(PktLoginDisconnect, pk.String(`"bye"`)))
	require.NoError(t, err)
	assert.Equal(t, `"bye"`, reason)

	threshold, err := ParseSetCompression(pk.Marshal(PktLoginSetCompression, pk.VarInt(256)))
	require.NoError(t, err)
	assert.Equal(t, 256, threshold)

	id, err := ParseKeepAlive(BuildKeepAlive(7))
	require.NoError(t, err)
	assert.Equal(t, int32(7), id)

	_, err = ParseEncryptionRequest(pk.Packet{ID: PktEncryptionRequest})
	assert.Error(t, err)
}
