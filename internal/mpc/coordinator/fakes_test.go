package coordinator

import (
	"context"
	"sync"

	"github.com/kashguard/go-waas-device/internal/mpc/chain"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/stretchr/testify/mock"
)

// MockEngine 模拟本地 MPC 计算原语
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) BootstrapDevice(ctx context.Context, passcode string) (string, error) {
	args := m.Called(ctx, passcode)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) GetRegistrationData(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) ResetPasscode(ctx context.Context, newPasscode string) error {
	return m.Called(ctx, newPasscode).Error(0)
}

func (m *MockEngine) ComputeMPCOperation(ctx context.Context, mpcData string) error {
	return m.Called(ctx, mpcData).Error(0)
}

func (m *MockEngine) ComputePrepareDeviceArchiveMPCOperation(ctx context.Context, mpcData string, passcode string) error {
	return m.Called(ctx, mpcData, passcode).Error(0)
}

func (m *MockEngine) ComputePrepareDeviceBackupMPCOperation(ctx context.Context, mpcData string, passcode string) error {
	return m.Called(ctx, mpcData, passcode).Error(0)
}

func (m *MockEngine) ComputeAddDeviceMPCOperation(ctx context.Context, mpcData string, passcode string, deviceBackup string) error {
	return m.Called(ctx, mpcData, passcode, deviceBackup).Error(0)
}

func (m *MockEngine) ExportPrivateKeys(ctx context.Context, mpcKeyExportMetadata string, passcode string) ([]*protocol.PrivateKey, error) {
	args := m.Called(ctx, mpcKeyExportMetadata, passcode)
	keys, _ := args.Get(0).([]*protocol.PrivateKey)
	return keys, args.Error(1)
}

func (m *MockEngine) ExportDeviceBackup(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// fakeWaaS is a scripted in-memory backend. Listings for a device group are
// returned in order; the last listing repeats.
type fakeWaaS struct {
	mu sync.Mutex

	listings  map[string][][]*waas.PendingOperation
	listCalls map[string]int
	calls     []string

	walletResp *waas.CreateMPCWalletResponse
	wallet     *waas.MPCWallet
	addresses  map[string]*waas.Address
	signature  *waas.Signature
	group      *waas.DeviceGroup
	operations map[string]string

	registered  *waas.Device
	registerErr error
	initErr     error
	waitErr     error
	lastTx      *chain.Transaction

	// signatureRounds, when set, hands each CreateSignatureFromTx call its own
	// operation; the matching pending operation is listed a few cycles later.
	signatureRounds []signatureRound
	live            map[string][]liveOperation
}

type signatureRound struct {
	operation string
	mpcData   string
	payload   string
}

type liveOperation struct {
	op        *waas.PendingOperation
	visibleAt int
}

// liveListDelay is how many list calls pass before a created operation is listed.
const liveListDelay = 3


var (
	_ waas.PoolService      = (*fakeWaaS)(nil)
	_ waas.MPCKeyService    = (*fakeWaaS)(nil)
	_ waas.MPCWalletService = (*fakeWaaS)(nil)
)

func newFakeWaaS() *fakeWaaS {
	return &fakeWaaS{
		listings:   make(map[string][][]*waas.PendingOperation),
		listCalls:  make(map[string]int),
		addresses:  make(map[string]*waas.Address),
		operations: map[string]string{},
		live:       make(map[string][]liveOperation),
	}
}

func (f *fakeWaaS) script(group string, listings ...[]*waas.PendingOperation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings[group] = append(f.listings[group], listings...)
}

func (f *fakeWaaS) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeWaaS) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeWaaS) ListCalls(group string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[group]
}

func (f *fakeWaaS) CreatePool(ctx context.Context, displayName string, poolID string) (*waas.Pool, error) {
	f.record("CreatePool")
	return &waas.Pool{Name: "pools/" + poolID, DisplayName: displayName}, nil
}

func (f *fakeWaaS) GetPool(ctx context.Context, name string) (*waas.Pool, error) {
	f.record("GetPool")
	return &waas.Pool{Name: name}, nil
}

func (f *fakeWaaS) RegisterDevice(ctx context.Context, registrationData string) (*waas.Device, error) {
	f.record("RegisterDevice")
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return f.registered, nil
}

func (f *fakeWaaS) GetDevice(ctx context.Context, name string) (*waas.Device, error) {
	f.record("GetDevice")
	return &waas.Device{Name: name}, nil
}

func (f *fakeWaaS) GetDeviceGroup(ctx context.Context, name string) (*waas.DeviceGroup, error) {
	f.record("GetDeviceGroup")
	return f.group, nil
}

func (f *fakeWaaS) ListPendingOperations(ctx context.Context, deviceGroup string) ([]*waas.PendingOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.listCalls[deviceGroup]
	f.listCalls[deviceGroup]++
	if live, ok := f.live[deviceGroup]; ok {
		var visible []*waas.PendingOperation
		for _, l := range live {
			if idx >= l.visibleAt {
				visible = append(visible, l.op)
			}
		}
		return visible, nil
	}
	listings := f.listings[deviceGroup]
	if len(listings) == 0 {
		return nil, nil
	}
	if idx >= len(listings) {
		idx = len(listings) - 1
	}
	return listings[idx], nil
}

func (f *fakeWaaS) CreateSignatureFromTx(ctx context.Context, mpcKey string, tx *chain.Transaction) (string, error) {
	f.record("CreateSignature")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTx = tx
	if f.initErr != nil {
		return "", f.initErr
	}
	if len(f.signatureRounds) > 0 {
		r := f.signatureRounds[0]
		f.signatureRounds = f.signatureRounds[1:]
		group := waas.DeviceGroupOfMPCKey(mpcKey)
		f.live[group] = append(f.live[group], liveOperation{
			op: &waas.PendingOperation{
				Kind:         protocol.KindCreateSignature,
				DeviceGroup:  group,
				Operation:    r.operation,
				MPCOperation: r.operation + "/mpc",
				MPCData:      r.mpcData,
				Payload:      r.payload,
			},
			visibleAt: f.listCalls[group] + liveListDelay,
		})
		return r.operation, nil
	}
	return f.operations["CreateSignature"], nil
}

func (f *fakeWaaS) WaitSignature(ctx context.Context, operation string) (*waas.Signature, error) {
	f.record("WaitSignature")
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return f.signature, nil
}

func (f *fakeWaaS) PrepareDeviceArchive(ctx context.Context, deviceGroup string, device string) (string, error) {
	f.record("PrepareDeviceArchive")
	return f.operations["PrepareDeviceArchive"], f.initErr
}

func (f *fakeWaaS) WaitDeviceArchive(ctx context.Context, operation string) error {
	f.record("WaitDeviceArchive")
	return f.waitErr
}

func (f *fakeWaaS) PrepareDeviceBackup(ctx context.Context, deviceGroup string, device string) (string, error) {
	f.record("PrepareDeviceBackup")
	return f.operations["PrepareDeviceBackup"], f.initErr
}

func (f *fakeWaaS) WaitDeviceBackup(ctx context.Context, operation string) error {
	f.record("WaitDeviceBackup")
	return f.waitErr
}

func (f *fakeWaaS) AddDevice(ctx context.Context, deviceGroup string, device string) (string, error) {
	f.record("AddDevice")
	return f.operations["AddDevice"], f.initErr
}

func (f *fakeWaaS) WaitAddDevice(ctx context.Context, operation string) error {
	f.record("WaitAddDevice")
	return f.waitErr
}

func (f *fakeWaaS) CreateMPCWallet(ctx context.Context, pool string, device string) (*waas.CreateMPCWalletResponse, error) {
	f.record("CreateMPCWallet")
	if f.initErr != nil {
		return nil, f.initErr
	}
	return f.walletResp, nil
}

func (f *fakeWaaS) WaitMPCWallet(ctx context.Context, operation string) (*waas.MPCWallet, error) {
	f.record("WaitMPCWallet")
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return f.wallet, nil
}

func (f *fakeWaaS) GenerateAddress(ctx context.Context, mpcWallet string, network string) (*waas.Address, error) {
	f.record("GenerateAddress")
	return &waas.Address{Name: mpcWallet + "/addresses/a1", MPCWallet: mpcWallet}, nil
}

func (f *fakeWaaS) GetAddress(ctx context.Context, name string) (*waas.Address, error) {
	f.record("GetAddress")
	addr, ok := f.addresses[name]
	if !ok {
		return nil, protocol.NewDomainError(protocol.CodeNotFound, "address not found")
	}
	return addr, nil
}
