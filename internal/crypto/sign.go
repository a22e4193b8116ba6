package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
)

// HashSHA256 returns the SHA-256 digest of data.
func HashSHA256(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// DeriveKey computes the 16-byte AES key a client derives from its pairing
// salt and PIN: SHA256(salt || pin)[0:16].
func DeriveKey(salt [16]byte, pin string) [16]byte {
	digest := HashSHA256(salt[:], []byte(pin))
	var key [16]byte
	copy(key[:], digest[:16])
	return key
}

// SignSHA256 signs the SHA-256 digest of data with key using RSA PKCS#1 v1.5,
// the PKCS#1 v1.5 signature the pairing handshake exchanges.
func SignSHA256(data []byte, key *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}

// VerifySHA256 verifies an RSA PKCS#1 v1.5 signature of data's SHA-256
// digest under the given public key.
func VerifySHA256(data, signature []byte, key *rsa.PublicKey) error {
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature)
}
