package coordinator

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/kashguard/go-waas-device/internal/mpc/chain"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/mpc/session"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/rs/zerolog/log"
)

// phase is one poll-then-compute step of a flow.
type phase struct {
	parent string
	accept session.Accept
	opts   protocol.ComputeOptions
	// verify runs on every selected operation before its compute step.
	verify func(op *waas.PendingOperation) error
}

// computePending polls phase.parent until the phase's operations are listed,
// then computes each selected operation once, in processing order. A compute
// failure aborts the remaining operations; nothing is retried.
func (s *Service) computePending(ctx context.Context, l *Lifecycle, poller *session.Manager, gateway *protocol.Gateway, p phase) error {
	if err := l.Advance(StatePending); err != nil {
		return err
	}

	ops, err := poller.Poll(ctx, p.parent, s.interval, p.accept)
	if err != nil {
		return err
	}

	for _, op := range ops {
		if p.verify != nil {
			if err := p.verify(op); err != nil {
				return err
			}
		}
		log.Info().
			Str("flow", string(l.Flow)).
			Str("device_group", p.parent).
			Str("mpc_operation", op.MPCOperation).
			Str("kind", string(op.Kind)).
			Msg("Computing pending operation")
		if err := gateway.Compute(ctx, op.Kind, op.MPCData, p.opts); err != nil {
			return err
		}
	}

	return l.Advance(StateComputed)
}

func requireArg(value string, name string) error {
	if value == "" {
		return protocol.NewDomainError(protocol.CodeInvalidArgument, name+" is required")
	}
	return nil
}

// CreateWallet 创建设备组与 MPC 钱包
func (s *Service) CreateWallet(ctx context.Context, req *CreateWalletRequest) (*waas.MPCWallet, error) {
	wallets, err := s.walletService()
	if err != nil {
		return nil, err
	}
	_, poller, err := s.keyService()
	if err != nil {
		return nil, err
	}
	gateway, err := s.computeGateway()
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, protocol.NewDomainError(protocol.CodeInvalidArgument, "request is required")
	}
	for _, arg := range [][2]string{{req.Pool, "pool"}, {req.Device, "device"}, {req.Passcode, "passcode"}} {
		if err := requireArg(arg[0], arg[1]); err != nil {
			return nil, err
		}
	}

	l := s.newLifecycle(FlowCreateWallet)
	log.Info().Str("pool", req.Pool).Str("device", req.Device).Msg("Creating MPC wallet")

	resp, err := wallets.CreateMPCWallet(ctx, req.Pool, req.Device)
	if err != nil {
		return nil, s.fail(l, err)
	}
	if err := l.Advance(StateInitiated); err != nil {
		return nil, s.fail(l, err)
	}

	// the device group is new, so only a caller that already knows its name can contend
	release, err := s.groups.acquire(ctx, resp.DeviceGroup)
	if err != nil {
		return nil, s.fail(l, err)
	}
	defer release()

	phases := []phase{
		{parent: resp.DeviceGroup, accept: session.AcceptKind(protocol.KindCreateDeviceGroup)},
		{parent: resp.DeviceGroup, accept: session.AcceptKind(protocol.KindPrepareDeviceArchive), opts: protocol.ComputeOptions{Passcode: req.Passcode}},
	}
	for _, p := range phases {
		if err := s.computePending(ctx, l, poller, gateway, p); err != nil {
			return nil, s.fail(l, err)
		}
	}
	release()

	wallet, err := wallets.WaitMPCWallet(ctx, resp.Operation)
	if err != nil {
		return nil, s.fail(l, err)
	}
	if err := l.Advance(StateConfirmed); err != nil {
		return nil, s.fail(l, err)
	}

	log.Info().Str("mpc_wallet", wallet.Name).Str("device_group", wallet.DeviceGroup).Msg("MPC wallet created")
	return wallet, nil
}

// Sign 使用地址的第一个 MPC 密钥签名交易，返回签名资源
func (s *Service) Sign(ctx context.Context, req *SignRequest) (*waas.Signature, error) {
	wallets, err := s.walletService()
	if err != nil {
		return nil, err
	}
	keys, poller, err := s.keyService()
	if err != nil {
		return nil, err
	}
	gateway, err := s.computeGateway()
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, protocol.NewDomainError(protocol.CodeInvalidArgument, "request is required")
	}
	if err := requireArg(req.Address, "address"); err != nil {
		return nil, err
	}
	if req.Transaction == nil {
		return nil, protocol.NewDomainError(protocol.CodeInvalidArgument, "transaction is required")
	}

	l := s.newLifecycle(FlowSign)

	addr, err := wallets.GetAddress(ctx, req.Address)
	if err != nil {
		return nil, s.fail(l, err)
	}
	if len(addr.MPCKeys) == 0 {
		return nil, s.fail(l, protocol.NewDomainError(protocol.CodeFailedPrecondition, "address has no mpc keys").WithOperation(addr.Name))
	}
	mpcKey := addr.MPCKeys[0]
	deviceGroup := waas.DeviceGroupOfMPCKey(mpcKey)

	release, err := s.groups.acquire(ctx, deviceGroup)
	if err != nil {
		return nil, s.fail(l, err)
	}
	defer release()

	op, err := keys.CreateSignatureFromTx(ctx, mpcKey, req.Transaction)
	if err != nil {
		return nil, s.fail(l, err)
	}
	if err := l.Advance(StateInitiated); err != nil {
		return nil, s.fail(l, err)
	}

	p := phase{
		parent: deviceGroup,
		accept: session.AcceptOperation(protocol.KindCreateSignature, op),
		verify: s.payloadVerifier(req.Transaction),
	}
	if err := s.computePending(ctx, l, poller, gateway, p); err != nil {
		return nil, s.fail(l, err)
	}
	release()

	sig, err := keys.WaitSignature(ctx, op)
	if err != nil {
		return nil, s.fail(l, err)
	}
	if err := l.Advance(StateConfirmed); err != nil {
		return nil, s.fail(l, err)
	}
	return sig, nil
}

// payloadVerifier refuses to sign a pending signature whose payload is not the
// digest of tx. Without a chain adapter there is nothing to compare against.
func (s *Service) payloadVerifier(tx *chain.Transaction) func(op *waas.PendingOperation) error {
	adapter := s.optionalChain()
	if adapter == nil {
		return nil
	}
	return func(op *waas.PendingOperation) error {
		if op.Payload == "" {
			return nil
		}
		want, err := adapter.PayloadHash(tx)
		if err != nil {
			return protocol.WrapDomainError(protocol.CodeInvalidArgument, err, "invalid transaction")
		}
		if !strings.EqualFold(strings.TrimPrefix(op.Payload, "0x"), strings.TrimPrefix(want, "0x")) {
			return protocol.NewDomainError(protocol.CodeFailedPrecondition, "pending signature payload does not match the transaction").WithOperation(op.MPCOperation)
		}
		return nil
	}
}

// SignTransaction runs Sign and assembles the signed transaction locally.
func (s *Service) SignTransaction(ctx context.Context, req *SignRequest) (*chain.SignedTransaction, error) {
	adapter, err := s.chainAdapter()
	if err != nil {
		return nil, err
	}
	sig, err := s.Sign(ctx, req)
	if err != nil {
		return nil, err
	}
	return SignedTransaction(adapter, req.Transaction, sig)
}

// SignedTransaction assembles tx with sig. The signature already exists, so an
// assembly failure is a transform error rather than a failed operation.
func SignedTransaction(adapter *chain.EthereumAdapter, tx *chain.Transaction, sig *waas.Signature) (*chain.SignedTransaction, error) {
	if sig == nil {
		return nil, protocol.NewDomainError(protocol.CodeInvalidArgument, "signature is required")
	}
	signed, err := adapter.Assemble(tx, sig.Payload, sig.SignedPayload)
	if err != nil {
		return nil, protocol.NewTransformError(err).WithOperation(sig.Name)
	}
	return signed, nil
}

// PrepareKeyExport 准备私钥导出，返回导出元数据；实际导出由 ExportPrivateKeys 单独完成
func (s *Service) PrepareKeyExport(ctx context.Context, req *DeviceGroupRequest) (*ExportMetadata, error) {
	keys, poller, err := s.keyService()
	if err != nil {
		return nil, err
	}
	gateway, err := s.computeGateway()
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, protocol.NewDomainError(protocol.CodeInvalidArgument, "request is required")
	}
	if err := validateGroupRequest(req.DeviceGroup, req.Device, req.Passcode); err != nil {
		return nil, err
	}

	l := s.newLifecycle(FlowKeyExport)

	release, err := s.groups.acquire(ctx, req.DeviceGroup)
	if err != nil {
		return nil, s.fail(l, err)
	}
	defer release()

	op, err := keys.PrepareDeviceArchive(ctx, req.DeviceGroup, req.Device)
	if err != nil {
		return nil, s.fail(l, err)
	}
	if err := l.Advance(StateInitiated); err != nil {
		return nil, s.fail(l, err)
	}

	p := phase{
		parent: req.DeviceGroup,
		accept: session.AcceptOperation(protocol.KindPrepareDeviceArchive, op),
		opts:   protocol.ComputeOptions{Passcode: req.Passcode},
	}
	if err := s.computePending(ctx, l, poller, gateway, p); err != nil {
		return nil, s.fail(l, err)
	}
	release()

	if err := keys.WaitDeviceArchive(ctx, op); err != nil {
		return nil, s.fail(l, err)
	}

	group, err := keys.GetDeviceGroup(ctx, req.DeviceGroup)
	if err != nil {
		return nil, s.fail(l, err)
	}
	if group.MPCKeyExportMetadata == "" {
		return nil, s.fail(l, protocol.NewDomainError(protocol.CodeFailedPrecondition, "device group has no export metadata").WithOperation(group.Name))
	}
	if err := l.Advance(StateConfirmed); err != nil {
		return nil, s.fail(l, err)
	}

	return &ExportMetadata{
		DeviceGroup:          req.DeviceGroup,
		MPCKeyExportMetadata: group.MPCKeyExportMetadata,
		PreparedAt:           s.clock.Now(),
	}, nil
}

// ExportPrivateKeys 使用导出元数据与口令在本地导出私钥
func (s *Service) ExportPrivateKeys(ctx context.Context, mpcKeyExportMetadata string, passcode string) ([]*protocol.PrivateKey, error) {
	gateway, err := s.computeGateway()
	if err != nil {
		return nil, err
	}

	keys, err := gateway.ExportPrivateKeys(ctx, mpcKeyExportMetadata, passcode)
	if err != nil {
		return nil, err
	}

	if adapter := s.optionalChain(); adapter != nil {
		for _, k := range keys {
			pub, err := hex.DecodeString(strings.TrimPrefix(k.PublicKey, "0x"))
			if err != nil {
				log.Warn().Err(err).Msg("Exported public key is not hex, skipping address derivation")
				continue
			}
			if k.Address, err = adapter.AddressOfPublicKey(pub); err != nil {
				log.Warn().Err(err).Msg("Failed to derive address of exported key")
			}
		}
	}
	return keys, nil
}

// Backup 准备设备备份并在本地导出备份数据
func (s *Service) Backup(ctx context.Context, req *DeviceGroupRequest) (*waas.DeviceBackup, error) {
	keys, poller, err := s.keyService()
	if err != nil {
		return nil, err
	}
	gateway, err := s.computeGateway()
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, protocol.NewDomainError(protocol.CodeInvalidArgument, "request is required")
	}
	if err := validateGroupRequest(req.DeviceGroup, req.Device, req.Passcode); err != nil {
		return nil, err
	}

	l := s.newLifecycle(FlowBackup)

	release, err := s.groups.acquire(ctx, req.DeviceGroup)
	if err != nil {
		return nil, s.fail(l, err)
	}
	defer release()

	op, err := keys.PrepareDeviceBackup(ctx, req.DeviceGroup, req.Device)
	if err != nil {
		return nil, s.fail(l, err)
	}
	if err := l.Advance(StateInitiated); err != nil {
		return nil, s.fail(l, err)
	}

	p := phase{
		parent: req.DeviceGroup,
		accept: session.AcceptOperation(protocol.KindPrepareDeviceBackup, op),
		opts:   protocol.ComputeOptions{Passcode: req.Passcode},
	}
	if err := s.computePending(ctx, l, poller, gateway, p); err != nil {
		return nil, s.fail(l, err)
	}
	release()

	if err := keys.WaitDeviceBackup(ctx, op); err != nil {
		return nil, s.fail(l, err)
	}

	data, err := gateway.ExportDeviceBackup(ctx)
	if err != nil {
		return nil, s.fail(l, err)
	}
	if err := l.Advance(StateConfirmed); err != nil {
		return nil, s.fail(l, err)
	}

	return &waas.DeviceBackup{DeviceGroup: req.DeviceGroup, Data: data}, nil
}

// Restore 使用之前导出的备份把设备加入设备组
func (s *Service) Restore(ctx context.Context, req *RestoreRequest) error {
	keys, poller, err := s.keyService()
	if err != nil {
		return err
	}
	gateway, err := s.computeGateway()
	if err != nil {
		return err
	}
	if req == nil {
		return protocol.NewDomainError(protocol.CodeInvalidArgument, "request is required")
	}
	if err := validateGroupRequest(req.DeviceGroup, req.Device, req.Passcode); err != nil {
		return err
	}
	if err := requireArg(req.DeviceBackup, "device backup"); err != nil {
		return err
	}

	l := s.newLifecycle(FlowRestore)

	release, err := s.groups.acquire(ctx, req.DeviceGroup)
	if err != nil {
		return s.fail(l, err)
	}
	defer release()

	op, err := keys.AddDevice(ctx, req.DeviceGroup, req.Device)
	if err != nil {
		return s.fail(l, err)
	}
	if err := l.Advance(StateInitiated); err != nil {
		return s.fail(l, err)
	}

	p := phase{
		parent: req.DeviceGroup,
		accept: session.AcceptOperation(protocol.KindAddDevice, op),
		opts:   protocol.ComputeOptions{Passcode: req.Passcode, DeviceBackup: req.DeviceBackup},
	}
	if err := s.computePending(ctx, l, poller, gateway, p); err != nil {
		return s.fail(l, err)
	}
	release()

	if err := keys.WaitAddDevice(ctx, op); err != nil {
		return s.fail(l, err)
	}
	if err := l.Advance(StateConfirmed); err != nil {
		return s.fail(l, err)
	}

	log.Info().Str("device_group", req.DeviceGroup).Str("device", req.Device).Msg("Device restored")
	return nil
}

func validateGroupRequest(deviceGroup string, device string, passcode string) error {
	if err := requireArg(deviceGroup, "device group"); err != nil {
		return err
	}
	if err := requireArg(device, "device"); err != nil {
		return err
	}
	return requireArg(passcode, "passcode")
}

// PollPending polls deviceGroup until operations of kind are listed and
// returns them in processing order, without computing them.
func (s *Service) PollPending(ctx context.Context, deviceGroup string, kind protocol.Kind) ([]*waas.PendingOperation, error) {
	_, poller, err := s.keyService()
	if err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, protocol.NewDomainError(protocol.CodeInvalidArgument, "unknown mpc operation kind "+string(kind))
	}
	return poller.Poll(ctx, deviceGroup, s.interval, session.AcceptKind(kind))
}

// StopPolling 停止设备组上的轮询；没有活动会话时同样成功
func (s *Service) StopPolling(deviceGroup string) (session.StopResult, error) {
	_, poller, err := s.keyService()
	if err != nil {
		return session.StopResultNotActive, err
	}
	return poller.Stop(deviceGroup), nil
}

// ComputePending runs the compute step for one pending operation obtained from PollPending.
func (s *Service) ComputePending(ctx context.Context, op *waas.PendingOperation, opts protocol.ComputeOptions) error {
	gateway, err := s.computeGateway()
	if err != nil {
		return err
	}
	if op == nil {
		return protocol.NewDomainError(protocol.CodeInvalidArgument, "pending operation is required")
	}
	return gateway.Compute(ctx, op.Kind, op.MPCData, opts)
}
