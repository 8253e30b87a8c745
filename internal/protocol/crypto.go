package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Tnze/go-mc/net/CFB8"
)

// AuthDigest computes the server hash sent to the session server when
// joining: SHA-1 over serverID, the shared secret and the server's DER public
// key, printed as a signed two's-complement hex number without leading zeros.
func AuthDigest(serverID string, sharedSecret, publicKey []byte) string {
	h := sha1.New()
	h.Write([]byte(serverID))
	h.Write(sharedSecret)
	h.Write(publicKey)
	hash := h.Sum(nil)

	negative := hash[0]&0x80 == 0x80
	if negative {
		twosComplement(hash)
	}

	digest := strings.TrimLeft(hex.EncodeToString(hash), "0")
	if negative {
		digest = "-" + digest
	}
	return digest
}

func twosComplement(p []byte) {
	carry := true
	for i := len(p) - 1; i >= 0; i-- {
		p[i] = ^p[i]
		if carry {
			carry = p[i] == 0xff
			p[i]++
		}
	}
}

// NewSharedSecret returns a random AES key for the session.
func NewSharedSecret() ([]byte, error) {
	secret := make([]byte, SharedSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate shared secret: %w", err)
	}
	return secret, nil
}

// encryptForServer encrypts the shared secret and verify token with the
// server's RSA public key.
func encryptForServer(publicKeyDER, secret, verifyToken []byte) (encSecret, encToken []byte, err error) {
	key, err := x509.ParsePKIXPublicKey(publicKeyDER)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse server public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("server public key is %T, not RSA", key)
	}

	encSecret, err = rsa.EncryptPKCS1v15(rand.Reader, rsaKey, secret)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encrypt shared secret: %w", err)
	}
	encToken, err = rsa.EncryptPKCS1v15(rand.Reader, rsaKey, verifyToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encrypt verify token: %w", err)
	}
	return encSecret, encToken, nil
}

// newStreams returns the encrypt and decrypt streams keyed by the shared
// secret. Minecraft uses the secret as both key and IV.
func newStreams(secret []byte) (enc, dec cipher.Stream, err error) {
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return CFB8.NewCFB8Encrypt(block, secret), CFB8.NewCFB8Decrypt(block, secret), nil
}
