package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

// HostIdentity is the host's own certificate and private key, used both for
// the HTTPS pairing listener and for signing the pairing handshake.
type HostIdentity struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
	PEM         []byte // PEM-encoded certificate, handed to clients as <plaincert>
	TLS         tls.Certificate
}

// LoadOrGenerateHostIdentity loads certPath/keyPath if present, otherwise
// generates a self-signed identity and writes it there when autoGenerate is
// set.
func LoadOrGenerateHostIdentity(certPath, keyPath string, autoGenerate bool) (*HostIdentity, error) {
	if _, err := os.Stat(certPath); err == nil {
		if _, err := os.Stat(keyPath); err == nil {
			return loadHostIdentity(certPath, keyPath)
		}
	}

	if !autoGenerate {
		return nil, fmt.Errorf("crypto: certificate %q or key %q missing and auto-generation disabled", certPath, keyPath)
	}

	identity, err := generateHostIdentity()
	if err != nil {
		return nil, fmt.Errorf("generate host identity: %w", err)
	}
	if err := writeHostIdentity(identity, certPath, keyPath); err != nil {
		return nil, fmt.Errorf("persist host identity: %w", err)
	}
	return identity, nil
}

func loadHostIdentity(certPath, keyPath string) (*HostIdentity, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse key pair: %w", err)
	}

	cert, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	privateKey, ok := tlsCert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("expected RSA private key, got %T", tlsCert.PrivateKey)
	}

	return &HostIdentity{
		Certificate: cert,
		PrivateKey:  privateKey,
		PEM:         certPEM,
		TLS:         tlsCert,
	}, nil
}

func generateHostIdentity() (*HostIdentity, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "moonshine"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(20, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &HostIdentity{
		Certificate: cert,
		PrivateKey:  privateKey,
		PEM:         certPEM,
		TLS:         tlsCert,
	}, nil
}

func writeHostIdentity(identity *HostIdentity, certPath, keyPath string) error {
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(identity.PrivateKey)})

	if err := os.WriteFile(certPath, identity.PEM, 0o644); err != nil {
		return err
	}
	return os.WriteFile(keyPath, keyPEM, 0o600)
}

// ParseClientCertificate parses a client-supplied PEM certificate, as
// received hex-decoded in the "getservercert" pairing phase.
func ParseClientCertificate(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("crypto: no PEM block found in client certificate")
	}
	return x509.ParseCertificate(block.Bytes)
}
