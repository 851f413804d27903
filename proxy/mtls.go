package proxy

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// MTLSCredentials holds the CA, server and client certificates for the admin
// API. The CA private key is not stored after signing; only the public cert
// is kept for verification.
type MTLSCredentials struct {
	CACert    *x509.Certificate
	caCertDER []byte

	ServerCert    *x509.Certificate
	serverCertDER []byte
	serverKey     ed25519.PrivateKey

	ClientCert    *x509.Certificate
	clientCertDER []byte
	clientKey     ed25519.PrivateKey
}

// GenerateMTLSCredentials creates a CA and signs a server cert for hosts
// (IPs or DNS names, EKU serverAuth) and a client cert (EKU clientAuth).
// Loopback addresses are always included in the server cert.
func GenerateMTLSCredentials(lifetime time.Duration, hosts ...string) (*MTLSCredentials, error) {
	now := time.Now()
	notAfter := now.Add(lifetime)

	caPub, caPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}

	caSerial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          caSerial,
		Subject:               pkix.Name{CommonName: "novpn admin CA"},
		NotBefore:             now,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	caCertDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, caPub, caPriv)
	if err != nil {
		return nil, fmt.Errorf("create CA cert: %w", err)
	}
	caCert, err := x509.ParseCertificate(caCertDER)
	if err != nil {
		return nil, fmt.Errorf("parse CA cert: %w", err)
	}

	serverPub, serverPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate server key: %w", err)
	}
	serverSerial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	serverTemplate := &x509.Certificate{
		SerialNumber: serverSerial,
		Subject:      pkix.Name{CommonName: "novpn admin"},
		NotBefore:    now,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:     []string{"localhost"},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			serverTemplate.IPAddresses = append(serverTemplate.IPAddresses, ip)
		} else if h != "" {
			serverTemplate.DNSNames = append(serverTemplate.DNSNames, h)
		}
	}
	serverCertDER, err := x509.CreateCertificate(rand.Reader, serverTemplate, caCert, serverPub, caPriv)
	if err != nil {
		return nil, fmt.Errorf("create server cert: %w", err)
	}
	serverCert, err := x509.ParseCertificate(serverCertDER)
	if err != nil {
		return nil, fmt.Errorf("parse server cert: %w", err)
	}

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate client key: %w", err)
	}
	clientSerial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	clientTemplate := &x509.Certificate{
		SerialNumber: clientSerial,
		Subject:      pkix.Name{CommonName: "novpn CLI"},
		NotBefore:    now,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	clientCertDER, err := x509.CreateCertificate(rand.Reader, clientTemplate, caCert, clientPub, caPriv)
	if err != nil {
		return nil, fmt.Errorf("create client cert: %w", err)
	}
	clientCert, err := x509.ParseCertificate(clientCertDER)
	if err != nil {
		return nil, fmt.Errorf("parse client cert: %w", err)
	}

	return &MTLSCredentials{
		CACert:        caCert,
		caCertDER:     caCertDER,
		ServerCert:    serverCert,
		serverCertDER: serverCertDER,
		serverKey:     serverPriv,
		ClientCert:    clientCert,
		clientCertDER: clientCertDER,
		clientKey:     clientPriv,
	}, nil
}

func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	return serial, nil
}

// PEM encoding methods.

func (c *MTLSCredentials) CACertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.caCertDER})
}

func (c *MTLSCredentials) ServerCertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.serverCertDER})
}

func (c *MTLSCredentials) ServerKeyPEM() []byte {
	raw, err := x509.MarshalPKCS8PrivateKey(c.serverKey)
	if err != nil {
		panic(fmt.Sprintf("marshal server key: %v", err))
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: raw})
}

func (c *MTLSCredentials) ClientCertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.clientCertDER})
}

func (c *MTLSCredentials) ClientKeyPEM() []byte {
	raw, err := x509.MarshalPKCS8PrivateKey(c.clientKey)
	if err != nil {
		panic(fmt.Sprintf("marshal client key: %v", err))
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: raw})
}

// ClientTLSConfig returns a tls.Config for CLI commands calling the admin API.
// It pins the CA as the only trusted root and presents the client cert.
func (c *MTLSCredentials) ClientTLSConfig() (*tls.Config, error) {
	clientCert, err := tls.X509KeyPair(c.ClientCertPEM(), c.ClientKeyPEM())
	if err != nil {
		return nil, fmt.Errorf("load client keypair: %w", err)
	}

	caPool := x509.NewCertPool()
	caPool.AddCert(c.CACert)

	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      caPool,
	}, nil
}

// File names inside a credentials directory.
const (
	CACertFile     = "ca.pem"
	ServerCertFile = "server.pem"
	ServerKeyFile  = "server-key.pem"
	ClientCertFile = "client.pem"
	ClientKeyFile  = "client-key.pem"
)

// WriteFiles stores the PEM material in dir. Keys are written 0600.
func (c *MTLSCredentials) WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{CACertFile, c.CACertPEM(), 0o644},
		{ServerCertFile, c.ServerCertPEM(), 0o644},
		{ServerKeyFile, c.ServerKeyPEM(), 0o600},
		{ClientCertFile, c.ClientCertPEM(), 0o644},
		{ClientKeyFile, c.ClientKeyPEM(), 0o600},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, f.mode); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

// LoadServerTLSConfig reads the server keypair and CA from dir.
func LoadServerTLSConfig(dir string) (*tls.Config, error) {
	cert, pool, err := loadKeyPair(dir, ServerCertFile, ServerKeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
	}, nil
}

// LoadClientTLSConfig reads the client keypair and CA from dir.
func LoadClientTLSConfig(dir string) (*tls.Config, error) {
	cert, pool, err := loadKeyPair(dir, ClientCertFile, ClientKeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
	}, nil
}

func loadKeyPair(dir, certFile, keyFile string) (tls.Certificate, *x509.CertPool, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, certFile), filepath.Join(dir, keyFile))
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("load keypair: %w", err)
	}
	caPEM, err := os.ReadFile(filepath.Join(dir, CACertFile))
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("read CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return tls.Certificate{}, nil, fmt.Errorf("failed to parse CA certificate %s", CACertFile)
	}
	return cert, pool, nil
}
