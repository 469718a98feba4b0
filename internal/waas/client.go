package waas

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kashguard/go-waas-device/internal/mpc/chain"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/util/cert"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// ClientConfig WaaS gRPC 客户端配置
type ClientConfig struct {
	Endpoint  string
	Timeout   time.Duration
	KeepAlive time.Duration

	TLSEnabled    bool
	TLSCACertFile string
	// TLSCertFile and TLSKeyFile enable mTLS when both are set.
	TLSCertFile   string
	TLSKeyFile    string
}

// Dial 建立到 WaaS 后端的连接
func Dial(cfg ClientConfig) (*grpc.ClientConn, error) {
	var opts []grpc.DialOption

	if cfg.TLSEnabled {
		tlsConfig, err := cert.ClientTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSCACertFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load TLS credentials")
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	if cfg.KeepAlive > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepAlive,
			Timeout:             cfg.Timeout,
			PermitWithoutStream: true,
		}))
	}

	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)))

	log.Debug().Str("endpoint", cfg.Endpoint).Bool("tls", cfg.TLSEnabled).Msg("Dialing WaaS backend")
	conn, err := grpc.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to WaaS backend at %s", cfg.Endpoint)
	}
	return conn, nil
}

// DefaultWaitInterval is the pause between WaitOperation calls that return an
// unfinished operation.
const DefaultWaitInterval = 500 * time.Millisecond

// Client implements PoolService, MPCKeyService and MPCWalletService over one
// gRPC connection.
type Client struct {
	conn         grpc.ClientConnInterface
	waitInterval time.Duration
}

var (
	_ PoolService      = (*Client)(nil)
	_ MPCKeyService    = (*Client)(nil)
	_ MPCWalletService = (*Client)(nil)
)

// NewClient 基于已有连接创建客户端
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn, waitInterval: DefaultWaitInterval}
}

// WithWaitInterval sets the pause between unfinished WaitOperation replies.
func (c *Client) WithWaitInterval(d time.Duration) *Client {
	if d > 0 {
		c.waitInterval = d
	}
	return c
}

func (c *Client) invoke(ctx context.Context, method string, req any, resp any) error {
	if err := c.conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return fromRPCError(method, err)
	}
	return nil
}

// startOperation invokes a method that returns a long-running operation.
func (c *Client) startOperation(ctx context.Context, method string, req any) (*operation, error) {
	var op operation
	if err := c.invoke(ctx, method, req, &op); err != nil {
		return nil, err
	}
	if op.Name == "" {
		return nil, protocol.NewTransportError(errors.Errorf("%s returned an operation without a name", method))
	}
	return &op, nil
}

// wait blocks on WaitOperation until the operation is done and decodes its
// response into out (when out is not nil).
func (c *Client) wait(ctx context.Context, name string, out any) error {
	method := fullMethod(operationsName, "WaitOperation")
	for {
		var op operation
		if err := c.invoke(ctx, method, &waitOperationRequest{Name: name}, &op); err != nil {
			return protocol.AsError(err).WithOperation(name)
		}

		if !op.Done {
			// Server-side wait timeout or a non-blocking server; the operation is still running.
			log.Debug().Str("operation", name).Dur("retry_in", c.waitInterval).Msg("Operation not done yet, waiting again")
			timer := time.NewTimer(c.waitInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return protocol.NewCancelledError(ctx.Err()).WithOperation(name)
			case <-timer.C:
			}
			continue
		}

		if op.Error != nil {
			return fromOperationError(name, op.Error)
		}
		if out == nil || len(op.Response) == 0 {
			return nil
		}
		if err := json.Unmarshal(op.Response, out); err != nil {
			return protocol.NewTransportError(errors.Wrapf(err, "failed to decode response of %s", name)).WithOperation(name)
		}
		return nil
	}
}

func (c *Client) CreatePool(ctx context.Context, displayName string, poolID string) (*Pool, error) {
	var pool Pool
	req := &createPoolRequest{PoolID: poolID, Pool: Pool{DisplayName: displayName}}
	if err := c.invoke(ctx, fullMethod(poolServiceName, "CreatePool"), req, &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (c *Client) GetPool(ctx context.Context, name string) (*Pool, error) {
	var pool Pool
	if err := c.invoke(ctx, fullMethod(poolServiceName, "GetPool"), &getRequest{Name: name}, &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (c *Client) RegisterDevice(ctx context.Context, registrationData string) (*Device, error) {
	var device Device
	if err := c.invoke(ctx, methodRegisterDevice, &registerDeviceRequest{RegistrationData: registrationData}, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

func (c *Client) GetDevice(ctx context.Context, name string) (*Device, error) {
	var device Device
	if err := c.invoke(ctx, fullMethod(mpcKeyServiceName, "GetDevice"), &getRequest{Name: name}, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

func (c *Client) GetDeviceGroup(ctx context.Context, name string) (*DeviceGroup, error) {
	var group DeviceGroup
	if err := c.invoke(ctx, fullMethod(mpcKeyServiceName, "GetDeviceGroup"), &getRequest{Name: name}, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// ListPendingOperations follows page tokens until the listing is complete.
func (c *Client) ListPendingOperations(ctx context.Context, deviceGroup string) ([]*PendingOperation, error) {
	method := fullMethod(mpcKeyServiceName, "ListMPCOperations")
	req := &listPendingRequest{Parent: deviceGroup}

	var out []*PendingOperation
	for {
		var resp listPendingResponse
		if err := c.invoke(ctx, method, req, &resp); err != nil {
			return nil, err
		}
		for _, op := range resp.MPCOperations {
			if op.DeviceGroup == "" {
				op.DeviceGroup = deviceGroup
			}
			out = append(out, op)
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		req.PageToken = resp.NextPageToken
	}
}

func (c *Client) CreateSignatureFromTx(ctx context.Context, mpcKey string, tx *chain.Transaction) (string, error) {
	op, err := c.startOperation(ctx, fullMethod(mpcKeyServiceName, "CreateSignature"), &createSignatureRequest{Parent: mpcKey, Transaction: tx})
	if err != nil {
		return "", err
	}
	return op.Name, nil
}

func (c *Client) WaitSignature(ctx context.Context, operation string) (*Signature, error) {
	var sig Signature
	if err := c.wait(ctx, operation, &sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

func (c *Client) PrepareDeviceArchive(ctx context.Context, deviceGroup string, device string) (string, error) {
	return c.deviceOperation(ctx, "PrepareDeviceArchive", deviceGroup, device)
}

func (c *Client) WaitDeviceArchive(ctx context.Context, operation string) error {
	return c.wait(ctx, operation, nil)
}

func (c *Client) PrepareDeviceBackup(ctx context.Context, deviceGroup string, device string) (string, error) {
	return c.deviceOperation(ctx, "PrepareDeviceBackup", deviceGroup, device)
}

func (c *Client) WaitDeviceBackup(ctx context.Context, operation string) error {
	return c.wait(ctx, operation, nil)
}

func (c *Client) AddDevice(ctx context.Context, deviceGroup string, device string) (string, error) {
	return c.deviceOperation(ctx, "AddDevice", deviceGroup, device)
}

func (c *Client) WaitAddDevice(ctx context.Context, operation string) error {
	return c.wait(ctx, operation, nil)
}

func (c *Client) deviceOperation(ctx context.Context, method string, deviceGroup string, device string) (string, error) {
	op, err := c.startOperation(ctx, fullMethod(mpcKeyServiceName, method), &deviceOperationRequest{DeviceGroup: deviceGroup, Device: device})
	if err != nil {
		return "", err
	}
	return op.Name, nil
}

// CreateMPCWallet 发起钱包创建；设备组名称来自操作元数据
func (c *Client) CreateMPCWallet(ctx context.Context, pool string, device string) (*CreateMPCWalletResponse, error) {
	method := fullMethod(mpcWalletServiceName, "CreateMPCWallet")
	op, err := c.startOperation(ctx, method, &createMPCWalletRequest{Parent: pool, Device: device})
	if err != nil {
		return nil, err
	}

	var md createMPCWalletMetadata
	if len(op.Metadata) > 0 {
		if err := json.Unmarshal(op.Metadata, &md); err != nil {
			return nil, protocol.NewTransportError(errors.Wrap(err, "failed to decode CreateMPCWallet metadata")).WithOperation(op.Name)
		}
	}
	if md.DeviceGroup == "" {
		return nil, protocol.NewTransportError(errors.Errorf("%s returned no device group", method)).WithOperation(op.Name)
	}

	return &CreateMPCWalletResponse{DeviceGroup: md.DeviceGroup, Operation: op.Name}, nil
}

func (c *Client) WaitMPCWallet(ctx context.Context, operation string) (*MPCWallet, error) {
	var wallet MPCWallet
	if err := c.wait(ctx, operation, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (c *Client) GenerateAddress(ctx context.Context, mpcWallet string, network string) (*Address, error) {
	var addr Address
	if err := c.invoke(ctx, fullMethod(mpcWalletServiceName, "GenerateAddress"), &generateAddressRequest{MPCWallet: mpcWallet, Network: network}, &addr); err != nil {
		return nil, err
	}
	return &addr, nil
}

func (c *Client) GetAddress(ctx context.Context, name string) (*Address, error) {
	var addr Address
	if err := c.invoke(ctx, fullMethod(mpcWalletServiceName, "GetAddress"), &getRequest{Name: name}, &addr); err != nil {
		return nil, err
	}
	return &addr, nil
}
