package coordinator

import (
	"context"
	"testing"

	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/mpc/storage"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func registrationEngine() *MockEngine {
	engine := new(MockEngine)
	engine.On("GetRegistrationData", mock.Anything).Return("reg-data", nil)
	return engine
}

func TestRegisterDevice_Fresh(t *testing.T) {
	backend := newFakeWaaS()
	backend.registered = &waas.Device{Name: "devices/d1"}

	s := newTestService(backend, registrationEngine())
	device, err := s.RegisterDevice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "devices/d1", device.Name)

	current, ok, err := s.CurrentDevice(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "devices/d1", current.Name)
}

func TestRegisterDevice_AlreadyRegisteredFallsBack(t *testing.T) {
	backend := newFakeWaaS()
	backend.registerErr = protocol.NewDomainError(protocol.CodeDeviceAlreadyRegistered, "device already registered")

	s := newTestService(backend, registrationEngine())
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), storage.DeviceNameKey, "devices/known"))
	s.UseIdentityStore(store)

	device, err := s.RegisterDevice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "devices/known", device.Name)
}

func TestRegisterDevice_AlreadyRegisteredWithoutIdentity(t *testing.T) {
	backend := newFakeWaaS()
	backend.registerErr = protocol.NewDomainError(protocol.CodeDeviceAlreadyRegistered, "device already registered")

	s := newTestService(backend, registrationEngine())
	_, err := s.RegisterDevice(context.Background())
	e := protocol.AsError(err)
	require.NotNil(t, e)
	assert.Equal(t, protocol.ErrTypeDomain, e.Type)
	assert.Equal(t, protocol.CodeDeviceAlreadyRegistered, e.Code)

	_, ok, err := s.CurrentDevice(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterDevice_OtherErrorsSurface(t *testing.T) {
	backend := newFakeWaaS()
	backend.registerErr = protocol.NewDomainError(protocol.CodePermissionDenied, "denied")

	s := newTestService(backend, registrationEngine())
	require.NoError(t, s.identity.Set(context.Background(), storage.DeviceNameKey, "devices/known"))

	_, err := s.RegisterDevice(context.Background())
	assert.True(t, protocol.HasCode(err, protocol.CodePermissionDenied))
}

func TestRegisterDevice_NotInitialized(t *testing.T) {
	s := NewService(Options{})
	s.UseMPCKeyService(newFakeWaaS())
	s.UseEngine(registrationEngine())

	_, err := s.RegisterDevice(context.Background())
	assert.True(t, protocol.IsType(err, protocol.ErrTypeNotInitialized))
}
