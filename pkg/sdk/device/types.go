package device

import (
	"github.com/kashguard/go-waas-device/internal/mpc/chain"
	"github.com/kashguard/go-waas-device/internal/mpc/coordinator"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/mpc/settlement"
	"github.com/kashguard/go-waas-device/internal/mpc/storage"
	"github.com/kashguard/go-waas-device/internal/waas"
)

// WaaS 资源
type (
	Pool             = waas.Pool
	Device           = waas.Device
	DeviceGroup      = waas.DeviceGroup
	MPCWallet        = waas.MPCWallet
	Address          = waas.Address
	Signature        = waas.Signature
	PendingOperation = waas.PendingOperation
	DeviceBackup     = waas.DeviceBackup
)

// 链上交易
type (
	Transaction       = chain.Transaction
	SignedTransaction = chain.SignedTransaction
)

// 编排流程请求与导出元数据
type (
	CreateWalletRequest = coordinator.CreateWalletRequest
	SignRequest         = coordinator.SignRequest
	DeviceGroupRequest  = coordinator.DeviceGroupRequest
	RestoreRequest      = coordinator.RestoreRequest
	ExportMetadata      = coordinator.ExportMetadata
)

// Engine is the local MPC primitive set a host application plugs in with
// InitMPCSdk.
type (
	Engine         = protocol.Engine
	PrivateKey     = protocol.PrivateKey
	ComputeOptions = protocol.ComputeOptions
	OperationKind  = protocol.Kind
)

// 可注入的远端服务与身份存储
type (
	PoolService      = waas.PoolService
	MPCKeyService    = waas.MPCKeyService
	MPCWalletService = waas.MPCWalletService
	IdentityStore    = storage.IdentityStore
)

type (
	Handle  = settlement.Handle
	Tracker = settlement.Tracker
)

const (
	OperationCreateDeviceGroup    = protocol.KindCreateDeviceGroup
	OperationCreateSignature      = protocol.KindCreateSignature
	OperationPrepareDeviceArchive = protocol.KindPrepareDeviceArchive
	OperationPrepareDeviceBackup  = protocol.KindPrepareDeviceBackup
	OperationAddDevice            = protocol.KindAddDevice
)

// Rejection codes passed to Continuation.Reject.
const (
	CodeNotInitialized          = protocol.CodeNotInitialized
	CodeTransform               = protocol.CodeTransform
	CodeDomain                  = protocol.CodeDomain
	CodeTransport               = protocol.CodeTransport
	CodeCancelled               = protocol.CodeCancelled
	CodeDeviceAlreadyRegistered = protocol.CodeDeviceAlreadyRegistered
	CodeAlreadyExists           = protocol.CodeAlreadyExists
	CodeNotFound                = protocol.CodeNotFound
	CodeInvalidArgument         = protocol.CodeInvalidArgument
	CodePermissionDenied        = protocol.CodePermissionDenied
	CodeFailedPrecondition      = protocol.CodeFailedPrecondition
	CodeOperationNotFound       = protocol.CodeOperationNotFound
	CodePayloadConsumed         = protocol.CodePayloadConsumed
	CodeMPCCompute              = protocol.CodeMPCCompute
	CodePollStopped             = protocol.CodePollStopped
	CodePollSessionActive       = protocol.CodePollSessionActive
	CodeProducerPanic           = protocol.CodeProducerPanic
)
