// Package crypto implements the host's cryptographic primitives: AES-ECB
// for the pairing handshake, AES-GCM for the control channel, AES-CBC for
// audio payloads, and the SHA-256/RSA signing glue pairing needs. All of it
// is standard library; crypto/cipher deliberately omits ECB mode, so the
// ECB helpers below hand-roll the block loop the way the Moonlight
// handshake requires.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// ErrNotBlockAligned is returned when ECB encrypt/decrypt is given a buffer
// whose length isn't a multiple of the AES block size.
var ErrNotBlockAligned = errors.New("crypto: buffer is not a multiple of the AES block size")

// ECBEncrypt encrypts plaintext with AES-128-ECB and no padding. plaintext
// must already be a multiple of the block size; every pairing-phase payload
// that uses this is naturally block-aligned (16, 32 or 48 bytes).
func ECBEncrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(plaintext)%block.BlockSize() != 0 {
		return nil, ErrNotBlockAligned
	}

	out := make([]byte, len(plaintext))
	for i := 0; i < len(plaintext); i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], plaintext[i:i+block.BlockSize()])
	}
	return out, nil
}

// ECBDecrypt decrypts ciphertext with AES-128-ECB and no padding.
func ECBDecrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, ErrNotBlockAligned
	}

	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += block.BlockSize() {
		block.Decrypt(out[i:i+block.BlockSize()], ciphertext[i:i+block.BlockSize()])
	}
	return out, nil
}

// GCMSeal encrypts plaintext with AES-128-GCM under key and the given
// 16-byte IV (the control channel uses [seq,0,0,...], not a random nonce),
// returning the ciphertext and the 16-byte authentication tag separately as
// the control-message envelope expects them.
func GCMSeal(key, iv, plaintext []byte) (ciphertext, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, nil, err
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - gcm.Overhead()
	return sealed[:split], sealed[split:], nil
}

// GCMOpen decrypts ciphertext with AES-128-GCM under key, iv and tag,
// returning the plaintext. Returns an error if the tag does not match.
func GCMOpen(key, iv, ciphertext, tag []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	return gcm.Open(nil, iv, sealed, nil)
}

// CBCEncrypt encrypts plaintext with AES-128-CBC under key and iv, applying
// PKCS7 padding, as the audio payload encryption requires.
func CBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(out, padded)
	return out, nil
}

// CBCDecrypt decrypts ciphertext with AES-128-CBC under key and iv, and
// strips PKCS7 padding.
func CBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, ErrNotBlockAligned
	}

	out := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("crypto: cannot unpad empty buffer")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, errors.New("crypto: invalid PKCS7 padding")
	}
	return data[:len(data)-padLen], nil
}
