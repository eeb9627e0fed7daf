package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"
)

// ErrInvalidOptions is returned when leaf options are incomplete.
var ErrInvalidOptions = errors.New("invalid certificate options")

// GenerateKeyPair generates a P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyPair{PrivateKey: key, PublicKey: &key.PublicKey}, nil
}

// ComputeSKI computes the subject key identifier of a public key as the
// SHA-1 hash of its uncompressed point.
func ComputeSKI(pub *ecdsa.PublicKey) ([]byte, error) {
	ecdhKey, err := pub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("convert public key: %w", err)
	}
	sum := sha1.Sum(ecdhKey.Bytes())
	return sum[:], nil
}

// NewCA generates a self-signed certificate authority.
func NewCA(commonName string) (*CA, error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	ski, err := ComputeSKI(kp.PublicKey)
	if err != nil {
		return nil, err
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(CAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		SubjectKeyId:          ski,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, kp.PublicKey, kp.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse CA certificate: %w", err)
	}
	return &CA{Certificate: cert, PrivateKey: kp.PrivateKey}, nil
}

// Issue creates a leaf certificate signed by the CA.
func (ca *CA) Issue(opts LeafOptions) (*Leaf, error) {
	if opts.CommonName == "" {
		return nil, fmt.Errorf("%w: common name is required", ErrInvalidOptions)
	}
	if !opts.Client && !opts.Server {
		return nil, fmt.Errorf("%w: client or server usage is required", ErrInvalidOptions)
	}
	validity := opts.Validity
	if validity <= 0 {
		validity = LeafValidity
	}

	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: opts.CommonName},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		EmailAddresses:        opts.Emails,
		AuthorityKeyId:        ca.Certificate.SubjectKeyId,
	}
	if opts.Server {
		template.ExtKeyUsage = append(template.ExtKeyUsage, x509.ExtKeyUsageServerAuth)
	}
	if opts.Client {
		template.ExtKeyUsage = append(template.ExtKeyUsage, x509.ExtKeyUsageClientAuth)
	}
	for _, h := range opts.Hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, kp.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create leaf certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse leaf certificate: %w", err)
	}
	return &Leaf{Certificate: cert, PrivateKey: kp.PrivateKey}, nil
}

// Bundle is a CA with a server and a client leaf, the set a loopback
// service host and its clients need.
type Bundle struct {
	CA     *CA
	Server *Leaf
	Client *Leaf
}

// NewBundle generates a CA, a server leaf valid for hosts and a client leaf
// named clientName.
func NewBundle(hosts []string, clientName string) (*Bundle, error) {
	ca, err := NewCA("svcmodel test CA")
	if err != nil {
		return nil, err
	}
	server, err := ca.Issue(LeafOptions{CommonName: firstOr(hosts, "localhost"), Hosts: hosts, Server: true})
	if err != nil {
		return nil, err
	}
	client, err := ca.Issue(LeafOptions{CommonName: clientName, Client: true})
	if err != nil {
		return nil, err
	}
	return &Bundle{CA: ca, Server: server, Client: client}, nil
}

func firstOr(s []string, def string) string {
	if len(s) > 0 {
		return s[0]
	}
	return def
}

func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	return serial, nil
}
