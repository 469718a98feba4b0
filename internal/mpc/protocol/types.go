package protocol

import (
	"context"

	"github.com/pkg/errors"
)

// Kind MPC 操作类型
type Kind string

const (
	KindCreateDeviceGroup    Kind = "CreateDeviceGroup"
	KindCreateSignature      Kind = "CreateSignature"
	KindPrepareDeviceArchive Kind = "PrepareDeviceArchive"
	KindPrepareDeviceBackup  Kind = "PrepareDeviceBackup"
	KindAddDevice            Kind = "AddDevice"
)

// Kinds lists every kind the compute step understands.
var Kinds = []Kind{
	KindCreateDeviceGroup,
	KindCreateSignature,
	KindPrepareDeviceArchive,
	KindPrepareDeviceBackup,
	KindAddDevice,
}

// ParseKind 解析操作类型
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", errors.Errorf("unknown mpc operation kind: %q", s)
}

func (k Kind) Valid() bool {
	_, err := ParseKind(string(k))
	return err == nil
}

// RequiresPasscode archive/backup/add-device 需要口令解密本地密钥材料
func (k Kind) RequiresPasscode() bool {
	switch k {
	case KindPrepareDeviceArchive, KindPrepareDeviceBackup, KindAddDevice:
		return true
	default:
		return false
	}
}

// RequiresDeviceBackup add-device 还需要之前导出的设备备份
func (k Kind) RequiresDeviceBackup() bool {
	return k == KindAddDevice
}

// ComputeOptions 计算步骤的附加输入
type ComputeOptions struct {
	Passcode     string
	DeviceBackup string
}

// PrivateKey 导出的私钥
type PrivateKey struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
	// Address is derived locally from PublicKey when the chain adapter is configured.
	Address string `json:"address,omitempty"`
}

// Engine 本地 MPC 计算原语（不透明，由设备端 MPC 库实现）
type Engine interface {
	BootstrapDevice(ctx context.Context, passcode string) (string, error)
	GetRegistrationData(ctx context.Context) (string, error)
	ResetPasscode(ctx context.Context, newPasscode string) error

	ComputeMPCOperation(ctx context.Context, mpcData string) error
	ComputePrepareDeviceArchiveMPCOperation(ctx context.Context, mpcData string, passcode string) error
	ComputePrepareDeviceBackupMPCOperation(ctx context.Context, mpcData string, passcode string) error
	ComputeAddDeviceMPCOperation(ctx context.Context, mpcData string, passcode string, deviceBackup string) error

	ExportPrivateKeys(ctx context.Context, mpcKeyExportMetadata string, passcode string) ([]*PrivateKey, error)
	ExportDeviceBackup(ctx context.Context) (string, error)
}

// Limiter bounds concurrent compute calls. *semaphore.Weighted satisfies it.
type Limiter interface {
	Acquire(ctx context.Context, n int64) error
	Release(n int64)
}
