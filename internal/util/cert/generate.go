package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Bundle file names written by Generate.
const (
	CAFile         = "ca.crt"
	CAKeyFile      = "ca.key"
	GatewayFile    = "gateway.crt"
	GatewayKeyFile = "gateway.key"
	DeviceFile     = "device.crt"
	DeviceKeyFile  = "device.key"
)

// Generate writes a development CA, a gateway server certificate for hosts and
// a device client certificate into outDir.
func Generate(outDir string, hosts []string, validity time.Duration) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", outDir)
	}

	log.Info().Msg("Generating CA certificate...")
	caKey, caCert, caPEM, caKeyPEM, err := generateCA(validity)
	if err != nil {
		return err
	}
	if err := writePair(outDir, CAFile, caPEM, CAKeyFile, caKeyPEM); err != nil {
		return err
	}

	log.Info().Strs("hosts", hosts).Msg("Generating gateway certificate...")
	gwPEM, gwKeyPEM, err := generateLeaf("waas-gateway", hosts, caCert, caKey, true, validity)
	if err != nil {
		return err
	}
	if err := writePair(outDir, GatewayFile, gwPEM, GatewayKeyFile, gwKeyPEM); err != nil {
		return err
	}

	log.Info().Msg("Generating device client certificate...")
	devPEM, devKeyPEM, err := generateLeaf("waas-device", nil, caCert, caKey, false, validity)
	if err != nil {
		return err
	}
	if err := writePair(outDir, DeviceFile, devPEM, DeviceKeyFile, devKeyPEM); err != nil {
		return err
	}

	log.Info().Str("dir", outDir).Msg("Certificates generated successfully")
	return nil
}

func writePair(dir, certName string, certPEM []byte, keyName string, keyPEM []byte) error {
	if err := os.WriteFile(filepath.Join(dir, certName), certPEM, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", certName)
	}
	if err := os.WriteFile(filepath.Join(dir, keyName), keyPEM, 0600); err != nil {
		return errors.Wrapf(err, "failed to write %s", keyName)
	}
	return nil
}

func generateCA(validity time.Duration) (*rsa.PrivateKey, *x509.Certificate, []byte, []byte, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "failed to generate CA key")
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"WaaS Device Dev"},
			CommonName:   "WaaS Device Dev Root CA",
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity * 10),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "failed to create CA certificate")
	}
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "failed to parse CA certificate")
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	return priv, parsed, certPEM, keyPEM, nil
}

func generateLeaf(cn string, hosts []string, caCert *x509.Certificate, caKey *rsa.PrivateKey, isServer bool, validity time.Duration) ([]byte, []byte, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to generate %s key", cn)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"WaaS Device Dev"},
			CommonName:   cn,
		},
		NotBefore: now.Add(-time.Minute),
		NotAfter:  now.Add(validity),
		KeyUsage:  x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}

	if isServer {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	} else {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &priv.PublicKey, caKey)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to create %s certificate", cn)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	return certPEM, keyPEM, nil
}
