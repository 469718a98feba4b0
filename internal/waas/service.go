package waas

import (
	"context"

	"github.com/kashguard/go-waas-device/internal/mpc/chain"
)

// PoolService 资源池服务
type PoolService interface {
	CreatePool(ctx context.Context, displayName string, poolID string) (*Pool, error)
	GetPool(ctx context.Context, name string) (*Pool, error)
}

// MPCKeyService 设备、设备组与 MPC 操作相关的远程服务
type MPCKeyService interface {
	RegisterDevice(ctx context.Context, registrationData string) (*Device, error)
	GetDevice(ctx context.Context, name string) (*Device, error)
	GetDeviceGroup(ctx context.Context, name string) (*DeviceGroup, error)

	// ListPendingOperations lists the MPC operations under deviceGroup that
	// wait for this device's compute step.
	ListPendingOperations(ctx context.Context, deviceGroup string) ([]*PendingOperation, error)

	// CreateSignatureFromTx starts a signature over tx with mpcKey and returns
	// the long-running operation name.
	CreateSignatureFromTx(ctx context.Context, mpcKey string, tx *chain.Transaction) (string, error)
	WaitSignature(ctx context.Context, operation string) (*Signature, error)

	PrepareDeviceArchive(ctx context.Context, deviceGroup string, device string) (string, error)
	WaitDeviceArchive(ctx context.Context, operation string) error

	PrepareDeviceBackup(ctx context.Context, deviceGroup string, device string) (string, error)
	WaitDeviceBackup(ctx context.Context, operation string) error

	AddDevice(ctx context.Context, deviceGroup string, device string) (string, error)
	WaitAddDevice(ctx context.Context, operation string) error
}

// MPCWalletService 钱包与地址服务
type MPCWalletService interface {
	CreateMPCWallet(ctx context.Context, pool string, device string) (*CreateMPCWalletResponse, error)
	WaitMPCWallet(ctx context.Context, operation string) (*MPCWallet, error)
	GenerateAddress(ctx context.Context, mpcWallet string, network string) (*Address, error)
	GetAddress(ctx context.Context, name string) (*Address, error)
}
