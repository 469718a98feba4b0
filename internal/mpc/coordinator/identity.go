package coordinator

import (
	"context"

	"github.com/kashguard/go-waas-device/internal/mpc/chain"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/mpc/storage"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RegisterDevice registers this installation with the backend and persists
// the device name. When the backend reports the device as already registered
// the persisted name is returned instead; without one the error is surfaced.
func (s *Service) RegisterDevice(ctx context.Context) (*waas.Device, error) {
	keys, _, err := s.keyService()
	if err != nil {
		return nil, err
	}
	gateway, err := s.computeGateway()
	if err != nil {
		return nil, err
	}
	store, err := s.identityStore()
	if err != nil {
		return nil, err
	}

	data, err := gateway.RegistrationData(ctx)
	if err != nil {
		return nil, err
	}

	device, err := keys.RegisterDevice(ctx, data)
	if err == nil {
		if err := store.Set(ctx, storage.DeviceNameKey, device.Name); err != nil {
			return nil, protocol.NewTransportError(errors.Wrap(err, "failed to persist device name"))
		}
		log.Info().Str("device", device.Name).Msg("Device registered")
		return device, nil
	}

	if !protocol.HasCode(err, protocol.CodeDeviceAlreadyRegistered) {
		return nil, err
	}

	name, ok, serr := store.Get(ctx, storage.DeviceNameKey)
	if serr != nil {
		return nil, protocol.NewTransportError(errors.Wrap(serr, "failed to read persisted device name"))
	}
	if !ok || name == "" {
		return nil, err
	}

	log.Info().Str("device", name).Msg("Device already registered, using persisted identity")
	return &waas.Device{Name: name}, nil
}

// CurrentDevice 读取已持久化的设备身份
func (s *Service) CurrentDevice(ctx context.Context) (*waas.Device, bool, error) {
	store, err := s.identityStore()
	if err != nil {
		return nil, false, err
	}
	name, ok, err := store.Get(ctx, storage.DeviceNameKey)
	if err != nil {
		return nil, false, protocol.NewTransportError(errors.Wrap(err, "failed to read persisted device name"))
	}
	if !ok {
		return nil, false, nil
	}
	return &waas.Device{Name: name}, true, nil
}

// BootstrapDevice 初始化本地密钥材料
func (s *Service) BootstrapDevice(ctx context.Context, passcode string) (string, error) {
	gateway, err := s.computeGateway()
	if err != nil {
		return "", err
	}
	return gateway.BootstrapDevice(ctx, passcode)
}

func (s *Service) ResetPasscode(ctx context.Context, newPasscode string) error {
	gateway, err := s.computeGateway()
	if err != nil {
		return err
	}
	return gateway.ResetPasscode(ctx, newPasscode)
}

// RegistrationData 设备注册数据
func (s *Service) RegistrationData(ctx context.Context) (string, error) {
	gateway, err := s.computeGateway()
	if err != nil {
		return "", err
	}
	return gateway.RegistrationData(ctx)
}

// Pools 透传资源服务；未注入时返回 NotInitialized
func (s *Service) Pools() (waas.PoolService, error) {
	return s.poolService()
}

func (s *Service) Keys() (waas.MPCKeyService, error) {
	keys, _, err := s.keyService()
	return keys, err
}

func (s *Service) Wallets() (waas.MPCWalletService, error) {
	return s.walletService()
}

func (s *Service) Chain() (*chain.EthereumAdapter, error) {
	return s.chainAdapter()
}
