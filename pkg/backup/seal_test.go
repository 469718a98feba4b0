package backup

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const group = "pools/p1/deviceGroups/g1"

func TestSealOpen(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	in := &waas.DeviceBackup{DeviceGroup: group, Data: "opaque-device-backup"}
	sealed, err := Seal(in, &priv.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, SealVersion, sealed[0])
	assert.NotContains(t, string(sealed), in.Data)

	out, err := Open(sealed, group, priv)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestOpen_WrongKey(t *testing.T) {
	alice, _ := crypto.GenerateKey()
	bob, _ := crypto.GenerateKey()

	sealed, err := Seal(&waas.DeviceBackup{DeviceGroup: group, Data: "secret"}, &alice.PublicKey)
	require.NoError(t, err)

	_, err = Open(sealed, group, bob)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decrypt")
}

func TestOpen_WrongDeviceGroup(t *testing.T) {
	priv, _ := crypto.GenerateKey()

	sealed, err := Seal(&waas.DeviceBackup{DeviceGroup: group, Data: "secret"}, &priv.PublicKey)
	require.NoError(t, err)

	_, err = Open(sealed, "pools/p1/deviceGroups/other", priv)
	assert.Error(t, err)
}

func TestOpen_Tampered(t *testing.T) {
	priv, _ := crypto.GenerateKey()

	sealed, err := Seal(&waas.DeviceBackup{DeviceGroup: group, Data: "secret"}, &priv.PublicKey)
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xFF
	_, err = Open(tampered, group, priv)
	assert.Error(t, err)

	tampered = append([]byte(nil), sealed...)
	tampered[0] = 9
	_, err = Open(tampered, group, priv)
	assert.True(t, errors.Is(err, ErrMalformedSealed))

	_, err = Open(sealed[:headerSize], group, priv)
	assert.True(t, errors.Is(err, ErrMalformedSealed))
}

func TestSeal_Validation(t *testing.T) {
	priv, _ := crypto.GenerateKey()

	_, err := Seal(&waas.DeviceBackup{Data: "x"}, nil)
	assert.Equal(t, ErrNilKey, err)

	_, err = Seal(&waas.DeviceBackup{}, &priv.PublicKey)
	assert.Equal(t, ErrEmptyBackup, err)

	_, err = Open([]byte("data"), group, nil)
	assert.Equal(t, ErrNilKey, err)
}
