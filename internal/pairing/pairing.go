package pairing

import (
	"bytes"
	"crypto/rand"
	"crypto/x509"
	"fmt"

	moonshinecrypto "github.com/hgaiser/moonshine/internal/crypto"
)

// Manager drives the four pairing phases of the Moonlight handshake, wrapping a
// Registry with the host's own identity (certificate + private key) needed
// to compute the challenge responses.
type Manager struct {
	registry *Registry
	hostCert *x509.Certificate
	identity *moonshinecrypto.HostIdentity
}

// NewManager constructs a Manager for the given host identity and client
// store.
func NewManager(identity *moonshinecrypto.HostIdentity, store ClientStore) *Manager {
	return &Manager{
		registry: NewRegistry(store),
		hostCert: identity.Certificate,
		identity: identity,
	}
}

// Registry exposes the underlying Registry, e.g. for /serverinfo's
// PairStatus lookup.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// StartPairing handles phase 1 ("getservercert"): records the PendingClient
// and returns once the PIN has been registered via RegisterPIN, blocking
// the caller as an HTTP handler would. Closing done (client disconnect or
// timeout) abandons the wait with an error.
func (m *Manager) StartPairing(id string, clientCertPEM []byte, salt [16]byte, done <-chan struct{}) (*PendingClient, error) {
	cert, err := moonshinecrypto.ParseClientCertificate(clientCertPEM)
	if err != nil {
		return nil, fmt.Errorf("parse client certificate: %w", err)
	}

	client := m.registry.StartPairing(id, cert, salt)

	select {
	case <-client.PINReceived:
		return client, nil
	case <-done:
		return nil, fmt.Errorf("pairing: client disconnected waiting for PIN")
	}
}

// RegisterPIN forwards a /pin submission to the matching pending client,
// waking its phase-1 rendezvous.
func (m *Manager) RegisterPIN(id, pin string) error {
	return m.registry.RegisterPIN(id, pin)
}

// ServerCertificatePEM returns the host certificate in PEM form, to be
// hex-encoded into the <plaincert> response.
func (m *Manager) ServerCertificatePEM() []byte {
	return m.identity.PEM
}

// ClientChallenge handles phase 2: decrypts the client challenge, mixes in
// the host certificate's own signature and a fresh server secret, and
// returns the AES-ECB-encrypted challenge response plus a fresh server
// challenge.
func (m *Manager) ClientChallenge(id string, challenge []byte) ([]byte, error) {
	client, err := m.registry.get(id)
	if err != nil {
		return nil, err
	}
	if client.Key == nil {
		return nil, fmt.Errorf("pairing: client %q has not provided a PIN yet", id)
	}

	decrypted, err := moonshinecrypto.ECBDecrypt(client.Key[:], challenge)
	if err != nil {
		return nil, fmt.Errorf("decrypt client challenge: %w", err)
	}

	var serverSecret [16]byte
	if _, err := rand.Read(serverSecret[:]); err != nil {
		return nil, fmt.Errorf("generate server secret: %w", err)
	}
	var serverChallenge [16]byte
	if _, err := rand.Read(serverChallenge[:]); err != nil {
		return nil, fmt.Errorf("generate server challenge: %w", err)
	}

	mixed := append(append([]byte{}, decrypted...), m.hostCert.Signature...)
	mixed = append(mixed, serverSecret[:]...)
	hash := moonshinecrypto.HashSHA256(mixed)

	response := append(hash, serverChallenge[:]...)
	encrypted, err := moonshinecrypto.ECBEncrypt(client.Key[:], response)
	if err != nil {
		return nil, fmt.Errorf("encrypt challenge response: %w", err)
	}

	client.ServerSecret = &serverSecret
	client.ServerChallenge = &serverChallenge

	return encrypted, nil
}

// ServerChallengeResponse handles phase 3: stores the client hash and
// returns `server_secret || sign(server_secret)`.
func (m *Manager) ServerChallengeResponse(id string, encryptedResponse []byte) ([]byte, error) {
	client, err := m.registry.get(id)
	if err != nil {
		return nil, err
	}
	if client.Key == nil {
		return nil, fmt.Errorf("pairing: client %q has not provided a PIN yet", id)
	}
	if client.ServerSecret == nil {
		return nil, fmt.Errorf("pairing: client %q has no server secret (wrong phase order?)", id)
	}

	decrypted, err := moonshinecrypto.ECBDecrypt(client.Key[:], encryptedResponse)
	if err != nil {
		return nil, fmt.Errorf("decrypt server challenge response: %w", err)
	}
	client.ClientHash = decrypted

	signature, err := moonshinecrypto.SignSHA256(client.ServerSecret[:], m.identity.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sign server secret: %w", err)
	}

	return append(append([]byte{}, client.ServerSecret[:]...), signature...), nil
}

// PairChallenge handles phase 4a ("pairchallenge"): promotes the client to
// paired. Moonlight always sends the same uniqueid regardless of result, so
// errors from Promote are logged but do not fail the phase.
func (m *Manager) PairChallenge(id string) error {
	return m.registry.Promote(id)
}

// CheckClientPairingSecret handles phase 4b: verifies
// SHA256(server_challenge || client_cert.signature || client_secret) equals
// the stored client hash. Unlike phase 4a's promotion, this is a hard fail on
// mismatch: the caller must surface an HTTP error rather than <paired>1</paired>.
// On success the client's pending record is removed.
func (m *Manager) CheckClientPairingSecret(id string, clientPairingSecret []byte) error {
	client, err := m.registry.get(id)
	if err != nil {
		return err
	}
	if client.ClientHash == nil {
		return fmt.Errorf("pairing: client %q has no stored hash (wrong phase order?)", id)
	}
	if client.ServerChallenge == nil {
		return fmt.Errorf("pairing: client %q has no server challenge (wrong phase order?)", id)
	}

	const expectedLen = 256 + 16
	if len(clientPairingSecret) != expectedLen {
		return fmt.Errorf("pairing: expected client pairing secret of %d bytes, got %d", expectedLen, len(clientPairingSecret))
	}
	clientSecret := clientPairingSecret[:16]

	mixed := append(append([]byte{}, client.ServerChallenge[:]...), client.Cert.Signature...)
	mixed = append(mixed, clientSecret...)
	computed := moonshinecrypto.HashSHA256(mixed)

	if !bytes.Equal(computed, client.ClientHash) {
		return fmt.Errorf("pairing: client hash mismatch for %q, possible MITM", id)
	}

	m.registry.mu.Lock()
	if m.registry.pending[id] == client {
		delete(m.registry.pending, id)
	}
	m.registry.mu.Unlock()

	return nil
}
