package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/kashguard/go-waas-device/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
)

// Gateway 本地 MPC 计算入口：校验输入、保证每个 payload 至多提交一次
type Gateway struct {
	engine  Engine
	limiter Limiter

	mu       sync.Mutex
	consumed map[[32]byte]Kind
}

// NewGateway 创建计算网关；limiter 为 nil 时不限制并发
func NewGateway(engine Engine, limiter Limiter) *Gateway {
	return &Gateway{
		engine:   engine,
		limiter:  limiter,
		consumed: make(map[[32]byte]Kind),
	}
}

// Compute runs the compute step for one pending-operation payload.
// A payload is marked consumed before the engine runs and stays consumed even
// when the engine fails, since the protocol round may already have advanced.
func (g *Gateway) Compute(ctx context.Context, kind Kind, mpcData string, opts ComputeOptions) error {
	if err := validate(kind, mpcData, opts); err != nil {
		return err
	}

	if g.limiter != nil {
		if err := g.limiter.Acquire(ctx, 1); err != nil {
			return NewCancelledError(err)
		}
		defer g.limiter.Release(1)
	}

	if err := g.consume(kind, mpcData); err != nil {
		return err
	}

	log.Debug().Str("kind", string(kind)).Int("payload_size", len(mpcData)).Msg("Computing MPC operation")

	start := time.Now()
	err := g.dispatch(ctx, kind, mpcData, opts)
	metrics.ObserveCompute(string(kind), time.Since(start), err)
	if err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("MPC compute failed")
		if e := AsError(err); e.Type == ErrTypeDomain {
			return e
		}
		return WrapDomainError(CodeMPCCompute, err, "mpc compute failed")
	}

	return nil
}

// Consumed reports whether the payload was already submitted.
func (g *Gateway) Consumed(mpcData string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.consumed[blake3.Sum256([]byte(mpcData))]
	return ok
}

func (g *Gateway) consume(kind Kind, mpcData string) error {
	sum := blake3.Sum256([]byte(mpcData))

	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.consumed[sum]; ok {
		return NewDomainError(CodePayloadConsumed, "mpc payload was already submitted for "+string(prev))
	}
	g.consumed[sum] = kind
	return nil
}

func (g *Gateway) dispatch(ctx context.Context, kind Kind, mpcData string, opts ComputeOptions) error {
	switch kind {
	case KindCreateDeviceGroup, KindCreateSignature:
		return g.engine.ComputeMPCOperation(ctx, mpcData)
	case KindPrepareDeviceArchive:
		return g.engine.ComputePrepareDeviceArchiveMPCOperation(ctx, mpcData, opts.Passcode)
	case KindPrepareDeviceBackup:
		return g.engine.ComputePrepareDeviceBackupMPCOperation(ctx, mpcData, opts.Passcode)
	case KindAddDevice:
		return g.engine.ComputeAddDeviceMPCOperation(ctx, mpcData, opts.Passcode, opts.DeviceBackup)
	default:
		return NewDomainError(CodeInvalidArgument, "unsupported mpc operation kind "+string(kind))
	}
}

func validate(kind Kind, mpcData string, opts ComputeOptions) error {
	if !kind.Valid() {
		return NewDomainError(CodeInvalidArgument, "unsupported mpc operation kind "+string(kind))
	}
	if mpcData == "" {
		return NewDomainError(CodeInvalidArgument, "mpc data is empty")
	}
	if kind.RequiresPasscode() && opts.Passcode == "" {
		return NewDomainError(CodeInvalidArgument, "passcode is required for "+string(kind))
	}
	if kind.RequiresDeviceBackup() && opts.DeviceBackup == "" {
		return NewDomainError(CodeInvalidArgument, "device backup is required for "+string(kind))
	}
	return nil
}

// BootstrapDevice 使用口令初始化设备本地密钥材料
func (g *Gateway) BootstrapDevice(ctx context.Context, passcode string) (string, error) {
	if passcode == "" {
		return "", NewDomainError(CodeInvalidArgument, "passcode is required")
	}
	res, err := g.engine.BootstrapDevice(ctx, passcode)
	if err != nil {
		return "", WrapDomainError(CodeMPCCompute, err, "failed to bootstrap device")
	}
	return res, nil
}

// RegistrationData 获取设备注册数据
func (g *Gateway) RegistrationData(ctx context.Context) (string, error) {
	data, err := g.engine.GetRegistrationData(ctx)
	if err != nil {
		return "", WrapDomainError(CodeMPCCompute, err, "failed to get registration data")
	}
	return data, nil
}

// ResetPasscode 重置本地口令
func (g *Gateway) ResetPasscode(ctx context.Context, newPasscode string) error {
	if newPasscode == "" {
		return NewDomainError(CodeInvalidArgument, "new passcode is required")
	}
	if err := g.engine.ResetPasscode(ctx, newPasscode); err != nil {
		return WrapDomainError(CodeMPCCompute, err, "failed to reset passcode")
	}
	return nil
}

// ExportPrivateKeys 使用导出元数据与口令在本地导出私钥
func (g *Gateway) ExportPrivateKeys(ctx context.Context, mpcKeyExportMetadata string, passcode string) ([]*PrivateKey, error) {
	if mpcKeyExportMetadata == "" {
		return nil, NewDomainError(CodeInvalidArgument, "mpc key export metadata is empty")
	}
	if passcode == "" {
		return nil, NewDomainError(CodeInvalidArgument, "passcode is required")
	}
	keys, err := g.engine.ExportPrivateKeys(ctx, mpcKeyExportMetadata, passcode)
	if err != nil {
		return nil, WrapDomainError(CodeMPCCompute, err, "failed to export private keys")
	}
	return keys, nil
}

// ExportDeviceBackup 导出口令保护的设备备份
func (g *Gateway) ExportDeviceBackup(ctx context.Context) (string, error) {
	backup, err := g.engine.ExportDeviceBackup(ctx)
	if err != nil {
		return "", WrapDomainError(CodeMPCCompute, err, "failed to export device backup")
	}
	return backup, nil
}
