package cert

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/pkg/errors"
)

// VerifyKeyPair checks that certFile/keyFile form a valid, unexpired pair
// issued by the CA in caCertFile.
func VerifyKeyPair(certFile, keyFile, caCertFile string) error {
	for _, f := range []string{certFile, keyFile, caCertFile} {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "certificate file not found: %s", f)
		}
	}

	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return errors.Wrap(err, "failed to load certificate key pair")
	}
	if len(pair.Certificate) == 0 {
		return errors.New("no certificate found in file")
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return errors.Wrap(err, "failed to parse certificate")
	}

	now := time.Now()
	if now.After(leaf.NotAfter) {
		return errors.Errorf("certificate expired at %s", leaf.NotAfter)
	}
	if now.Before(leaf.NotBefore) {
		return errors.Errorf("certificate not valid until %s", leaf.NotBefore)
	}

	roots, err := loadPool(caCertFile)
	if err != nil {
		return err
	}
	// Hostname is not checked here; the client cert only has to chain to the CA.
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}); err != nil {
		return errors.Wrap(err, "certificate verification against CA failed")
	}
	return nil
}

// ClientTLSConfig builds an mTLS client config. An empty certFile yields a
// server-auth-only config trusting caCertFile.
func ClientTLSConfig(certFile, keyFile, caCertFile string) (*tls.Config, error) {
	roots, err := loadPool(caCertFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		RootCAs:    roots,
		MinVersion: tls.VersionTLS12,
	}
	if certFile == "" {
		return cfg, nil
	}

	if err := VerifyKeyPair(certFile, keyFile, caCertFile); err != nil {
		return nil, err
	}
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load client key pair")
	}
	cfg.Certificates = []tls.Certificate{pair}
	return cfg, nil
}

func loadPool(caCertFile string) (*x509.CertPool, error) {
	caBytes, err := os.ReadFile(caCertFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CA certificate")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, errors.New("failed to parse CA certificate")
	}
	return pool, nil
}
