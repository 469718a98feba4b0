package waas

import (
	"strings"

	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
)

// Pool 资源池
type Pool struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
}

// Device 设备身份
type Device struct {
	Name string `json:"name"`
}

// DeviceGroup 共同持有钱包密钥分片的设备集合
type DeviceGroup struct {
	Name                 string   `json:"name"`
	MPCKeyExportMetadata string   `json:"mpc_key_export_metadata,omitempty"`
	Devices              []string `json:"devices,omitempty"`
}

// MPCWallet MPC 钱包
type MPCWallet struct {
	Name        string `json:"name"`
	DeviceGroup string `json:"device_group"`
}

// Address 链上地址
type Address struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	MPCKeys   []string `json:"mpc_keys"`
	MPCWallet string   `json:"mpc_wallet"`
}

// Signature MPC 签名结果
type Signature struct {
	Name          string `json:"name"`
	Payload       string `json:"payload"`
	SignedPayload string `json:"signed_payload"`
}

// CreateMPCWalletResponse 创建钱包的发起结果
type CreateMPCWalletResponse struct {
	DeviceGroup string `json:"device_group"`
	Operation   string `json:"operation"`
}

// DeviceBackup 设备备份产物（不透明）
type DeviceBackup struct {
	DeviceGroup string `json:"device_group,omitempty"`
	Data        string `json:"data"`
}

// PendingOperation is one server-tracked unit of work waiting for this
// device's compute step. Records are never mutated after a poll produced them.
type PendingOperation struct {
	Kind         protocol.Kind `json:"kind"`
	DeviceGroup  string        `json:"device_group"`
	Operation    string        `json:"operation"`
	MPCOperation string        `json:"mpc_operation"`
	MPCData      string        `json:"mpc_data"`
	// Payload is only set on CreateSignature operations.
	Payload string `json:"payload,omitempty"`
}

const mpcKeysSegment = "/mpcKeys/"

// DeviceGroupOfMPCKey returns the device group that owns an MPC key resource:
// pools/p1/deviceGroups/g1/mpcKeys/k1 -> pools/p1/deviceGroups/g1.
func DeviceGroupOfMPCKey(mpcKey string) string {
	if i := strings.Index(mpcKey, mpcKeysSegment); i >= 0 {
		return mpcKey[:i]
	}
	return mpcKey
}
