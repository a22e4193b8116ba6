package crypto

import (
	"bytes"
	"testing"
)

func TestECBRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	plaintext := []byte("sixteen byte msg")

	ciphertext, err := ECBEncrypt(key, plaintext)
	if err != nil {
		t.Fatalf("ECBEncrypt: %v", err)
	}
	decrypted, err := ECBDecrypt(key, ciphertext)
	if err != nil {
		t.Fatalf("ECBDecrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected %q, got %q", plaintext, decrypted)
	}
}

func TestECBRejectsUnalignedInput(t *testing.T) {
	key := []byte("0123456789abcdef")
	if _, err := ECBEncrypt(key, []byte("short")); err != ErrNotBlockAligned {
		t.Fatalf("expected ErrNotBlockAligned, got %v", err)
	}
}

func TestGCMRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := make([]byte, 16)
	iv[0] = 42

	plaintext := []byte("control channel message")
	ciphertext, tag, err := GCMSeal(key, iv, plaintext)
	if err != nil {
		t.Fatalf("GCMSeal: %v", err)
	}

	decrypted, err := GCMOpen(key, iv, ciphertext, tag)
	if err != nil {
		t.Fatalf("GCMOpen: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected %q, got %q", plaintext, decrypted)
	}
}

func TestGCMOpenRejectsTamperedTag(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := make([]byte, 16)

	ciphertext, tag, err := GCMSeal(key, iv, []byte("payload"))
	if err != nil {
		t.Fatalf("GCMSeal: %v", err)
	}
	tag[0] ^= 0xFF

	if _, err := GCMOpen(key, iv, ciphertext, tag); err == nil {
		t.Fatalf("expected tampered tag to fail authentication")
	}
}

func TestCBCRoundTripWithPadding(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := make([]byte, 16)

	for _, plaintext := range [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("exactly 16 bytes"),
		[]byte("this message is longer than one AES block"),
	} {
		ciphertext, err := CBCEncrypt(key, iv, plaintext)
		if err != nil {
			t.Fatalf("CBCEncrypt(%q): %v", plaintext, err)
		}
		decrypted, err := CBCDecrypt(key, iv, ciphertext)
		if err != nil {
			t.Fatalf("CBCDecrypt(%q): %v", plaintext, err)
		}
		if !bytes.Equal(decrypted, plaintext) {
			t.Fatalf("expected %q, got %q", plaintext, decrypted)
		}
	}
}

func TestDeriveKeyMatchesSpec(t *testing.T) {
	var salt [16]byte
	for i := range salt {
		salt[i] = byte(i)
	}

	key := DeriveKey(salt, "1234")
	expected := HashSHA256(salt[:], []byte("1234"))[:16]
	if !bytes.Equal(key[:], expected) {
		t.Fatalf("expected DeriveKey to equal SHA256(salt||pin)[:16]")
	}
}
