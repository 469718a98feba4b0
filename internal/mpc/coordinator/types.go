package coordinator

import (
	"time"

	"github.com/kashguard/go-waas-device/internal/mpc/chain"
)

// Flow 编排流程类型
type Flow string

const (
	FlowCreateWallet Flow = "create_wallet"
	FlowSign         Flow = "sign"
	FlowKeyExport    Flow = "key_export"
	FlowBackup       Flow = "backup"
	FlowRestore      Flow = "restore"
)

// CreateWalletRequest 创建设备组与钱包
type CreateWalletRequest struct {
	Pool     string
	Device   string
	Passcode string
}

// SignRequest 使用地址的第一个 MPC 密钥签名交易
type SignRequest struct {
	Address     string
	Transaction *chain.Transaction
}

// DeviceGroupRequest 针对设备组的口令保护流程（导出、备份）
type DeviceGroupRequest struct {
	DeviceGroup string
	Device      string
	Passcode    string
}

// RestoreRequest 使用备份把设备加回设备组
type RestoreRequest struct {
	DeviceGroup  string
	Device       string
	Passcode     string
	DeviceBackup string
}

// ExportMetadata is the output of the key-export preparation step. It can be
// persisted or transmitted before ExportPrivateKeys is called.
type ExportMetadata struct {
	DeviceGroup          string    `json:"device_group" cbor:"1,keyasint"`
	MPCKeyExportMetadata string    `json:"mpc_key_export_metadata" cbor:"2,keyasint"`
	PreparedAt           time.Time `json:"prepared_at" cbor:"3,keyasint"`
}
