// Package backup seals device backups to an escrow public key so they can be
// stored or transmitted outside the device before a restore.
package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	// SealVersion prefixes every envelope.
	SealVersion byte = 1

	nonceSize     = 12
	keySize       = 32
	ephemeralSize = 33
	headerSize    = 1 + ephemeralSize + nonceSize
)

var hkdfInfo = []byte("waas-device-backup-v1")

var (
	ErrNilKey          = errors.New("escrow key is nil")
	ErrEmptyBackup     = errors.New("device backup is empty")
	ErrMalformedSealed = errors.New("sealed backup is malformed")
)

// Seal encrypts b.Data for recipient.
// Envelope: version || ephemeral pubkey (compressed) || nonce || ciphertext+tag.
// The device group is bound as additional data and must be given again to Open.
func Seal(b *waas.DeviceBackup, recipient *ecdsa.PublicKey) ([]byte, error) {
	if recipient == nil {
		return nil, ErrNilKey
	}
	if b == nil || b.Data == "" {
		return nil, ErrEmptyBackup
	}

	ephemeral, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate ephemeral key")
	}
	ephemeralPub := crypto.CompressPubkey(&ephemeral.PublicKey)

	gcm, err := newGCM(ephemeral, recipient, ephemeralPub)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(b.Data)+gcm.Overhead())
	out[0] = SealVersion
	copy(out[1:], ephemeralPub)
	nonce := out[1+ephemeralSize : headerSize]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}

	return gcm.Seal(out, nonce, []byte(b.Data), additionalData(ephemeralPub, b.DeviceGroup)), nil
}

// Open reverses Seal. deviceGroup must match the one the backup was sealed with.
func Open(sealed []byte, deviceGroup string, recipient *ecdsa.PrivateKey) (*waas.DeviceBackup, error) {
	if recipient == nil {
		return nil, ErrNilKey
	}
	if len(sealed) <= headerSize {
		return nil, errors.Wrap(ErrMalformedSealed, "too short")
	}
	if sealed[0] != SealVersion {
		return nil, errors.Wrapf(ErrMalformedSealed, "unknown version %d", sealed[0])
	}

	ephemeralPub := sealed[1 : 1+ephemeralSize]
	nonce := sealed[1+ephemeralSize : headerSize]

	pub, err := crypto.DecompressPubkey(ephemeralPub)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedSealed, "invalid ephemeral public key")
	}

	gcm, err := newGCM(recipient, pub, ephemeralPub)
	if err != nil {
		return nil, err
	}

	plain, err := gcm.Open(nil, nonce, sealed[headerSize:], additionalData(ephemeralPub, deviceGroup))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt device backup")
	}
	return &waas.DeviceBackup{DeviceGroup: deviceGroup, Data: string(plain)}, nil
}

func additionalData(ephemeralPub []byte, deviceGroup string) []byte {
	aad := make([]byte, 0, len(ephemeralPub)+len(deviceGroup))
	aad = append(aad, ephemeralPub...)
	return append(aad, deviceGroup...)
}

// newGCM derives the AES-256-GCM cipher from the ECDH secret of priv and pub.
// The secret is the x-coordinate on secp256k1; salt is the ephemeral pubkey.
func newGCM(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey, salt []byte) (cipher.AEAD, error) {
	curve := crypto.S256()
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errors.New("public key is not on curve")
	}
	x, _ := curve.ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	if x == nil || x.Sign() == 0 {
		return nil, errors.New("shared secret is zero")
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, x.Bytes(), salt, hkdfInfo), key); err != nil {
		return nil, errors.Wrap(err, "failed to derive key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gcm")
	}
	return gcm, nil
}
