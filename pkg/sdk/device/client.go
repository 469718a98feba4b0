// Package device is the asynchronous device SDK surface. Every call returns
// immediately with a settlement handle and reports its outcome through the
// caller's Continuation exactly once.
package device

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-waas-device/internal/mpc/chain"
	"github.com/kashguard/go-waas-device/internal/mpc/coordinator"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/mpc/settlement"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/kashguard/go-waas-device/pkg/backup"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
)

// Config 客户端参数
type Config struct {
	PollInterval       time.Duration
	PollConcurrency    int64
	ComputeConcurrency int64
	Clock              time2.Clock
}

// Client 设备 SDK 客户端
type Client struct {
	svc     *coordinator.Service
	tracker *settlement.Tracker

	defaultLane *settlement.Lane
	computeLane *settlement.Lane
	pollLane    *settlement.Lane
}

// NewClient 创建客户端；服务句柄需通过 Init* 注入
func NewClient(cfg Config) *Client {
	if cfg.ComputeConcurrency <= 0 {
		cfg.ComputeConcurrency = 1
	}
	pollLane := settlement.NewLane("poll", cfg.PollConcurrency)

	return &Client{
		svc: coordinator.NewService(coordinator.Options{
			PollInterval:       cfg.PollInterval,
			PollLane:           pollLane,
			ComputeConcurrency: cfg.ComputeConcurrency,
			Clock:              cfg.Clock,
		}),
		tracker:     settlement.NewTracker(),
		defaultLane: settlement.NewLane("default", 0),
		computeLane: settlement.NewLane("compute", cfg.ComputeConcurrency),
		pollLane:    pollLane,
	}
}

func (c *Client) InitPoolService(pools PoolService) {
	c.svc.UsePoolService(pools)
}

func (c *Client) InitMPCKeyService(keys MPCKeyService) {
	c.svc.UseMPCKeyService(keys)
}

func (c *Client) InitMPCWalletService(wallets MPCWalletService) {
	c.svc.UseMPCWalletService(wallets)
}

func (c *Client) InitMPCSdk(engine Engine) {
	c.svc.UseEngine(engine)
}

func (c *Client) InitIdentityStore(store IdentityStore) {
	c.svc.UseIdentityStore(store)
}

func (c *Client) InitChain(chainID *big.Int) {
	c.svc.UseChain(chain.NewEthereumAdapter(chainID))
}

// InitFromConn wires all three remote services over one gRPC connection.
func (c *Client) InitFromConn(conn grpc.ClientConnInterface) {
	remote := waas.NewClient(conn)
	c.svc.UsePoolService(remote)
	c.svc.UseMPCKeyService(remote)
	c.svc.UseMPCWalletService(remote)
	log.Debug().Msg("Initialized WaaS services from connection")
}

// Tracker exposes the set of in-flight calls.
func (c *Client) Tracker() *Tracker {
	return c.tracker
}

// Wait blocks until every submitted call and poll loop has returned.
func (c *Client) Wait() {
	c.defaultLane.Wait()
	c.computeLane.Wait()
	c.pollLane.Wait()
}

func value[V any](ctx context.Context, c *Client, lane *settlement.Lane, name string, produce settlement.Producer[V], cont Continuation[Value]) *settlement.Handle {
	return settlement.Run(ctx, c.tracker, lane, name, produce, encodeAs[V], deliver(cont))
}

func values[V any](ctx context.Context, c *Client, lane *settlement.Lane, name string, produce settlement.Producer[[]V], cont Continuation[[]Value]) *settlement.Handle {
	return settlement.RunList(ctx, c.tracker, lane, name, produce, encodeAs[V], deliver(cont))
}

func (c *Client) void(ctx context.Context, lane *settlement.Lane, name string, produce func(ctx context.Context) error, cont Continuation[struct{}]) *settlement.Handle {
	return settlement.RunVoid(ctx, c.tracker, lane, name, produce, deliver(cont))
}

// --- pools ---

func (c *Client) CreatePool(ctx context.Context, displayName string, poolID string, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "CreatePool", func(ctx context.Context) (*waas.Pool, error) {
		pools, err := c.svc.Pools()
		if err != nil {
			return nil, err
		}
		return pools.CreatePool(ctx, displayName, poolID)
	}, cont)
}

func (c *Client) GetPool(ctx context.Context, name string, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "GetPool", func(ctx context.Context) (*waas.Pool, error) {
		pools, err := c.svc.Pools()
		if err != nil {
			return nil, err
		}
		return pools.GetPool(ctx, name)
	}, cont)
}

// --- device identity ---

// RegisterDevice registers this device, falling back to the persisted identity
// when the backend already knows it.
func (c *Client) RegisterDevice(ctx context.Context, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "RegisterDevice", c.svc.RegisterDevice, cont)
}

func (c *Client) GetDevice(ctx context.Context, name string, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "GetDevice", func(ctx context.Context) (*waas.Device, error) {
		keys, err := c.svc.Keys()
		if err != nil {
			return nil, err
		}
		return keys.GetDevice(ctx, name)
	}, cont)
}

func (c *Client) GetDeviceGroup(ctx context.Context, name string, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "GetDeviceGroup", func(ctx context.Context) (*waas.DeviceGroup, error) {
		keys, err := c.svc.Keys()
		if err != nil {
			return nil, err
		}
		return keys.GetDeviceGroup(ctx, name)
	}, cont)
}

// BootstrapDevice resolves with the device's opaque bootstrap data as Text.
func (c *Client) BootstrapDevice(ctx context.Context, passcode string, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.computeLane, "BootstrapDevice", func(ctx context.Context) (string, error) {
		return c.svc.BootstrapDevice(ctx, passcode)
	}, cont)
}

func (c *Client) GetRegistrationData(ctx context.Context, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.computeLane, "GetRegistrationData", c.svc.RegistrationData, cont)
}

func (c *Client) ResetPasscode(ctx context.Context, newPasscode string, cont Continuation[struct{}]) *Handle {
	return c.void(ctx, c.computeLane, "ResetPasscode", func(ctx context.Context) error {
		return c.svc.ResetPasscode(ctx, newPasscode)
	}, cont)
}

// --- primitive polling and compute ---

// PollPendingOperations resolves with the pending operations of kind under
// deviceGroup, most recently listed first.
func (c *Client) PollPendingOperations(ctx context.Context, deviceGroup string, kind OperationKind, cont Continuation[[]Value]) *Handle {
	return values(ctx, c, c.defaultLane, "Poll"+string(kind), func(ctx context.Context) ([]*waas.PendingOperation, error) {
		return c.svc.PollPending(ctx, deviceGroup, kind)
	}, cont)
}

func (c *Client) PollPendingDeviceGroups(ctx context.Context, deviceGroup string, cont Continuation[[]Value]) *Handle {
	return c.PollPendingOperations(ctx, deviceGroup, protocol.KindCreateDeviceGroup, cont)
}

func (c *Client) PollPendingSignatures(ctx context.Context, deviceGroup string, cont Continuation[[]Value]) *Handle {
	return c.PollPendingOperations(ctx, deviceGroup, protocol.KindCreateSignature, cont)
}

func (c *Client) PollPendingDeviceArchives(ctx context.Context, deviceGroup string, cont Continuation[[]Value]) *Handle {
	return c.PollPendingOperations(ctx, deviceGroup, protocol.KindPrepareDeviceArchive, cont)
}

func (c *Client) PollPendingDeviceBackups(ctx context.Context, deviceGroup string, cont Continuation[[]Value]) *Handle {
	return c.PollPendingOperations(ctx, deviceGroup, protocol.KindPrepareDeviceBackup, cont)
}

func (c *Client) PollPendingAddDevices(ctx context.Context, deviceGroup string, cont Continuation[[]Value]) *Handle {
	return c.PollPendingOperations(ctx, deviceGroup, protocol.KindAddDevice, cont)
}

// StopPolling stops the poll session on deviceGroup. It resolves with Text
// "stopped" or "not_active"; both are success.
func (c *Client) StopPolling(ctx context.Context, deviceGroup string, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "StopPolling", func(ctx context.Context) (string, error) {
		res, err := c.svc.StopPolling(deviceGroup)
		if err != nil {
			return "", err
		}
		return res.String(), nil
	}, cont)
}

// ComputeMPCOperation runs the local compute step for one polled operation.
func (c *Client) ComputeMPCOperation(ctx context.Context, op *PendingOperation, opts ComputeOptions, cont Continuation[struct{}]) *Handle {
	return c.void(ctx, c.computeLane, "Compute"+kindOf(op), func(ctx context.Context) error {
		return c.svc.ComputePending(ctx, op, opts)
	}, cont)
}

func kindOf(op *waas.PendingOperation) string {
	if op == nil {
		return "MPCOperation"
	}
	return string(op.Kind)
}

// --- primitive waits ---

func (c *Client) WaitSignature(ctx context.Context, operation string, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "WaitSignature", func(ctx context.Context) (*waas.Signature, error) {
		keys, err := c.svc.Keys()
		if err != nil {
			return nil, err
		}
		return keys.WaitSignature(ctx, operation)
	}, cont)
}

func (c *Client) WaitMPCWallet(ctx context.Context, operation string, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "WaitMPCWallet", func(ctx context.Context) (*waas.MPCWallet, error) {
		wallets, err := c.svc.Wallets()
		if err != nil {
			return nil, err
		}
		return wallets.WaitMPCWallet(ctx, operation)
	}, cont)
}

func (c *Client) WaitDeviceArchive(ctx context.Context, operation string, cont Continuation[struct{}]) *Handle {
	return c.void(ctx, c.defaultLane, "WaitDeviceArchive", func(ctx context.Context) error {
		keys, err := c.svc.Keys()
		if err != nil {
			return err
		}
		return keys.WaitDeviceArchive(ctx, operation)
	}, cont)
}

func (c *Client) WaitDeviceBackup(ctx context.Context, operation string, cont Continuation[struct{}]) *Handle {
	return c.void(ctx, c.defaultLane, "WaitDeviceBackup", func(ctx context.Context) error {
		keys, err := c.svc.Keys()
		if err != nil {
			return err
		}
		return keys.WaitDeviceBackup(ctx, operation)
	}, cont)
}

func (c *Client) WaitAddDevice(ctx context.Context, operation string, cont Continuation[struct{}]) *Handle {
	return c.void(ctx, c.defaultLane, "WaitAddDevice", func(ctx context.Context) error {
		keys, err := c.svc.Keys()
		if err != nil {
			return err
		}
		return keys.WaitAddDevice(ctx, operation)
	}, cont)
}

// --- wallets and addresses ---

func (c *Client) GenerateAddress(ctx context.Context, mpcWallet string, network string, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "GenerateAddress", func(ctx context.Context) (*waas.Address, error) {
		wallets, err := c.svc.Wallets()
		if err != nil {
			return nil, err
		}
		return wallets.GenerateAddress(ctx, mpcWallet, network)
	}, cont)
}

func (c *Client) GetAddress(ctx context.Context, name string, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "GetAddress", func(ctx context.Context) (*waas.Address, error) {
		wallets, err := c.svc.Wallets()
		if err != nil {
			return nil, err
		}
		return wallets.GetAddress(ctx, name)
	}, cont)
}

// --- composed flows ---

// CreateMPCWallet creates a device group and wallet and resolves with the wallet.
func (c *Client) CreateMPCWallet(ctx context.Context, req *CreateWalletRequest, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "CreateMPCWallet", func(ctx context.Context) (*waas.MPCWallet, error) {
		return c.svc.CreateWallet(ctx, req)
	}, cont)
}

func (c *Client) CreateSignatureFromTx(ctx context.Context, req *SignRequest, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "CreateSignature", func(ctx context.Context) (*waas.Signature, error) {
		return c.svc.Sign(ctx, req)
	}, cont)
}

// SignTransaction signs and assembles req.Transaction in one call.
func (c *Client) SignTransaction(ctx context.Context, req *SignRequest, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "SignTransaction", func(ctx context.Context) (*chain.SignedTransaction, error) {
		return c.svc.SignTransaction(ctx, req)
	}, cont)
}

// GetSignedTransaction assembles tx with an already computed signature.
func (c *Client) GetSignedTransaction(ctx context.Context, tx *Transaction, sig *Signature, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "GetSignedTransaction", func(ctx context.Context) (*chain.SignedTransaction, error) {
		adapter, err := c.svc.Chain()
		if err != nil {
			return nil, err
		}
		return coordinator.SignedTransaction(adapter, tx, sig)
	}, cont)
}

func (c *Client) PrepareDeviceArchive(ctx context.Context, req *DeviceGroupRequest, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "PrepareDeviceArchive", func(ctx context.Context) (*coordinator.ExportMetadata, error) {
		return c.svc.PrepareKeyExport(ctx, req)
	}, cont)
}

// ExportPrivateKeys resolves with one PrivateKey value per exported key.
func (c *Client) ExportPrivateKeys(ctx context.Context, mpcKeyExportMetadata string, passcode string, cont Continuation[[]Value]) *Handle {
	return values(ctx, c, c.computeLane, "ExportPrivateKeys", func(ctx context.Context) ([]*protocol.PrivateKey, error) {
		return c.svc.ExportPrivateKeys(ctx, mpcKeyExportMetadata, passcode)
	}, cont)
}

func (c *Client) PrepareDeviceBackup(ctx context.Context, req *DeviceGroupRequest, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.defaultLane, "PrepareDeviceBackup", func(ctx context.Context) (*waas.DeviceBackup, error) {
		return c.svc.Backup(ctx, req)
	}, cont)
}

func (c *Client) AddDevice(ctx context.Context, req *RestoreRequest, cont Continuation[struct{}]) *Handle {
	return c.void(ctx, c.defaultLane, "AddDevice", func(ctx context.Context) error {
		return c.svc.Restore(ctx, req)
	}, cont)
}

// SealDeviceBackup encrypts a backup for an escrow key and resolves with the
// sealed bytes as an Opaque value.
func (c *Client) SealDeviceBackup(ctx context.Context, b *DeviceBackup, escrow *ecdsa.PublicKey, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.computeLane, "SealDeviceBackup", func(ctx context.Context) ([]byte, error) {
		sealed, err := backup.Seal(b, escrow)
		if err != nil {
			return nil, protocol.WrapDomainError(protocol.CodeInvalidArgument, err, "failed to seal device backup")
		}
		return sealed, nil
	}, cont)
}

// OpenDeviceBackup reverses SealDeviceBackup; the result can be passed to AddDevice.
func (c *Client) OpenDeviceBackup(ctx context.Context, sealed []byte, deviceGroup string, escrow *ecdsa.PrivateKey, cont Continuation[Value]) *Handle {
	return value(ctx, c, c.computeLane, "OpenDeviceBackup", func(ctx context.Context) (*waas.DeviceBackup, error) {
		b, err := backup.Open(sealed, deviceGroup, escrow)
		if err != nil {
			return nil, protocol.WrapDomainError(protocol.CodeInvalidArgument, err, "failed to open device backup")
		}
		return b, nil
	}, cont)
}
