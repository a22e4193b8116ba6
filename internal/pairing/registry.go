// Package pairing implements the four-phase Moonlight pairing handshake
// keyed by the client-supplied unique id.
package pairing

import (
	"crypto/x509"
	"fmt"
	"sync"

	moonshinecrypto "github.com/hgaiser/moonshine/internal/crypto"
	"github.com/hgaiser/moonshine/internal/logging"
)

var log = logging.L("pairing")

// PendingClient is the transient record tracked during the pairing
// handshake. It is created by phase 1 ("getservercert") and removed once
// phase 4b verifies the client's pairing secret; phase 4a promotes its id
// into the persisted client set.
type PendingClient struct {
	// ID is the opaque, client-supplied identifier, unique per client.
	ID string

	// Cert is the client's X.509 certificate, received in phase 1.
	Cert *x509.Certificate

	// Salt is the client-supplied 16-byte pairing salt.
	Salt [16]byte

	// PINReceived closes once RegisterPIN has been called for this client,
	// unblocking the phase-1 HTTP handler's rendezvous wait.
	PINReceived chan struct{}
	pinOnce     sync.Once

	// Key is the 16-byte AES key derived from salt+PIN; nil until the PIN
	// arrives.
	Key *[16]byte

	ServerSecret    *[16]byte
	ServerChallenge *[16]byte
	ClientHash      []byte
}

func newPendingClient(id string, cert *x509.Certificate, salt [16]byte) *PendingClient {
	return &PendingClient{
		ID:          id,
		Cert:        cert,
		Salt:        salt,
		PINReceived: make(chan struct{}),
	}
}

func (p *PendingClient) notifyPIN() {
	p.pinOnce.Do(func() { close(p.PINReceived) })
}

// ClientStore persists the set of fully paired client ids.
type ClientStore interface {
	HasClient(id string) bool
	AddClient(id string) error
}

// Registry owns the in-memory pending-client table and the persisted client
// set, one mutex-guarded map per
// subsystem.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*PendingClient
	store   ClientStore
}

// NewRegistry constructs a Registry backed by store.
func NewRegistry(store ClientStore) *Registry {
	return &Registry{
		pending: make(map[string]*PendingClient),
		store:   store,
	}
}

// IsPaired reports whether id is in the persisted client set.
func (r *Registry) IsPaired(id string) bool {
	return r.store.HasClient(id)
}

// StartPairing installs a new PendingClient for id, overwriting any earlier
// attempt for the same id (re-issuing phase 1 restarts the state machine for
// that client).
func (r *Registry) StartPairing(id string, cert *x509.Certificate, salt [16]byte) *PendingClient {
	client := newPendingClient(id, cert, salt)

	r.mu.Lock()
	r.pending[id] = client
	r.mu.Unlock()

	return client
}

// RegisterPIN derives the pairing key from the PIN and wakes the phase-1
// rendezvous for id.
func (r *Registry) RegisterPIN(id, pin string) error {
	client, err := r.get(id)
	if err != nil {
		return err
	}

	key := moonshinecrypto.DeriveKey(client.Salt, pin)

	r.mu.Lock()
	client.Key = &key
	r.mu.Unlock()

	client.notifyPIN()
	return nil
}

// get returns the pending client for id, or an error if none exists.
func (r *Registry) get(id string) (*PendingClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.pending[id]
	if !ok {
		return nil, fmt.Errorf("pairing: no pending client with id %q", id)
	}
	return client, nil
}

// Promote adds id to the persisted client set (phase 4a). Moonlight clients all report the same
// uniqueid across different physical devices, so a duplicate promotion is
// tolerated rather than treated as an error.
func (r *Registry) Promote(id string) error {
	if r.store.HasClient(id) {
		log.Debug("client already paired, ignoring duplicate promotion", "id", id)
		return nil
	}
	return r.store.AddClient(id)
}
