package pairing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	moonshinecrypto "github.com/hgaiser/moonshine/internal/crypto"
)

func selfSignedPEM(t *testing.T, cn string) ([]byte, *x509.Certificate, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(1, 0, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return certPEM, cert, key
}

func testIdentity(t *testing.T) *moonshinecrypto.HostIdentity {
	t.Helper()
	certPEM, cert, key := selfSignedPEM(t, "moonshine-test-host")
	return &moonshinecrypto.HostIdentity{Certificate: cert, PrivateKey: key, PEM: certPEM}
}

func TestFullPairingHandshakeSucceeds(t *testing.T) {
	store, err := LoadFileStore(filepath.Join(t.TempDir(), "state.toml"))
	if err != nil {
		t.Fatalf("LoadFileStore: %v", err)
	}

	manager := NewManager(testIdentity(t), store)
	clientCertPEM, clientCert, _ := selfSignedPEM(t, "moonlight-client")

	const id = "client-1"
	var salt [16]byte
	for i := range salt {
		salt[i] = byte(i)
	}

	done := make(chan struct{})
	resultCh := make(chan error, 1)
	go func() {
		_, err := manager.StartPairing(id, clientCertPEM, salt, done)
		resultCh <- err
	}()

	// StartPairing registers the pending client on its own goroutine; retry
	// until it has.
	registerPIN := func(pin string) error {
		deadline := time.Now().Add(time.Second)
		for {
			err := manager.RegisterPIN(id, pin)
			if err == nil || time.Now().After(deadline) {
				return err
			}
			time.Sleep(time.Millisecond)
		}
	}
	if err := registerPIN("1234"); err != nil {
		t.Fatalf("RegisterPIN: %v", err)
	}
	if err := <-resultCh; err != nil {
		t.Fatalf("StartPairing: %v", err)
	}

	key := moonshinecrypto.DeriveKey(salt, "1234")

	// Phase 2: client sends an encrypted challenge, we respond.
	var clientChallenge [16]byte
	if _, err := rand.Read(clientChallenge[:]); err != nil {
		t.Fatal(err)
	}
	encryptedChallenge, err := moonshinecrypto.ECBEncrypt(key[:], clientChallenge[:])
	if err != nil {
		t.Fatalf("ECBEncrypt: %v", err)
	}
	challengeResponse, err := manager.ClientChallenge(id, encryptedChallenge)
	if err != nil {
		t.Fatalf("ClientChallenge: %v", err)
	}

	decryptedChallengeResponse, err := moonshinecrypto.ECBDecrypt(key[:], challengeResponse)
	if err != nil {
		t.Fatalf("ECBDecrypt: %v", err)
	}
	serverHash := decryptedChallengeResponse[:32]
	serverChallenge := decryptedChallengeResponse[32:48]

	// Phase 3: client hashes server_challenge+its own cert sig+a client secret.
	var clientSecret [16]byte
	if _, err := rand.Read(clientSecret[:]); err != nil {
		t.Fatal(err)
	}
	clientHashInput := append(append([]byte{}, serverChallenge...), clientCert.Signature...)
	clientHashInput = append(clientHashInput, clientSecret[:]...)
	clientHash := moonshinecrypto.HashSHA256(clientHashInput)

	encryptedClientHash, err := moonshinecrypto.ECBEncrypt(key[:], clientHash)
	if err != nil {
		t.Fatalf("ECBEncrypt: %v", err)
	}
	pairingSecretResponse, err := manager.ServerChallengeResponse(id, encryptedClientHash)
	if err != nil {
		t.Fatalf("ServerChallengeResponse: %v", err)
	}
	if len(pairingSecretResponse) < 16 {
		t.Fatalf("expected pairing secret response of at least 16 bytes, got %d", len(pairingSecretResponse))
	}
	_ = serverHash // server_hash is opaque to the client in this test; not re-verified here.

	// Phase 4a.
	if err := manager.PairChallenge(id); err != nil {
		t.Fatalf("PairChallenge: %v", err)
	}

	// Phase 4b: client sends clientSecret || rsaSign(clientSecret) sized 256+16.
	clientPairingSecret := append(append([]byte{}, clientSecret[:]...), make([]byte, 256)...)
	if err := manager.CheckClientPairingSecret(id, clientPairingSecret); err != nil {
		t.Fatalf("CheckClientPairingSecret: %v", err)
	}

	if !store.HasClient(id) {
		t.Fatalf("expected client %q to be in the persisted store", id)
	}
}

func TestCheckClientPairingSecretRejectsTamperedSecret(t *testing.T) {
	store, err := LoadFileStore(filepath.Join(t.TempDir(), "state.toml"))
	if err != nil {
		t.Fatalf("LoadFileStore: %v", err)
	}
	manager := NewManager(testIdentity(t), store)
	clientCertPEM, clientCert, _ := selfSignedPEM(t, "moonlight-client")

	const id = "client-2"
	var salt [16]byte
	done := make(chan struct{})
	resultCh := make(chan error, 1)
	go func() {
		_, err := manager.StartPairing(id, clientCertPEM, salt, done)
		resultCh <- err
	}()
	deadline := time.Now().Add(time.Second)
	for {
		err := manager.RegisterPIN(id, "0000")
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("RegisterPIN: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	<-resultCh

	key := moonshinecrypto.DeriveKey(salt, "0000")
	var clientChallenge [16]byte
	encryptedChallenge, _ := moonshinecrypto.ECBEncrypt(key[:], clientChallenge[:])
	challengeResponse, err := manager.ClientChallenge(id, encryptedChallenge)
	if err != nil {
		t.Fatalf("ClientChallenge: %v", err)
	}
	decryptedChallengeResponse, _ := moonshinecrypto.ECBDecrypt(key[:], challengeResponse)
	serverChallenge := decryptedChallengeResponse[32:48]

	var clientSecret [16]byte
	clientHashInput := append(append([]byte{}, serverChallenge...), clientCert.Signature...)
	clientHashInput = append(clientHashInput, clientSecret[:]...)
	clientHash := moonshinecrypto.HashSHA256(clientHashInput)
	encryptedClientHash, _ := moonshinecrypto.ECBEncrypt(key[:], clientHash)
	if _, err := manager.ServerChallengeResponse(id, encryptedClientHash); err != nil {
		t.Fatalf("ServerChallengeResponse: %v", err)
	}
	if err := manager.PairChallenge(id); err != nil {
		t.Fatalf("PairChallenge: %v", err)
	}

	tampered := append(append([]byte{}, clientSecret[:]...), make([]byte, 256)...)
	tampered[0] ^= 0xFF // flip a bit in the client secret.

	if err := manager.CheckClientPairingSecret(id, tampered); err == nil {
		t.Fatalf("expected tampered client pairing secret to fail verification")
	}
}
