package coordinator

import (
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-waas-device/internal/metrics"
	"github.com/kashguard/go-waas-device/internal/mpc/chain"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/mpc/session"
	"github.com/kashguard/go-waas-device/internal/mpc/settlement"
	"github.com/kashguard/go-waas-device/internal/mpc/storage"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Options 编排服务参数
type Options struct {
	PollInterval       time.Duration
	PollLane           *settlement.Lane
	ComputeConcurrency int64
	Clock              time2.Clock
}

// Service 生命周期编排服务。服务句柄通过 Use* 显式注入，缺失时相关流程返回 NotInitialized。
type Service struct {
	interval    time.Duration
	pollLane    *settlement.Lane
	computeSlot int64
	clock       time2.Clock
	groups      *groupLocks

	mu       sync.RWMutex
	pools    waas.PoolService
	keys     waas.MPCKeyService
	wallets  waas.MPCWalletService
	gateway  *protocol.Gateway
	poller   *session.Manager
	identity storage.IdentityStore
	chain    *chain.EthereumAdapter
}

// NewService 创建编排服务
func NewService(opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = session.DefaultInterval
	}
	if opts.PollLane == nil {
		opts.PollLane = settlement.NewLane("poll", 0)
	}
	if opts.ComputeConcurrency <= 0 {
		opts.ComputeConcurrency = 1
	}
	if opts.Clock == nil {
		opts.Clock = time2.DefaultClock
	}
	return &Service{
		interval:    opts.PollInterval,
		pollLane:    opts.PollLane,
		computeSlot: opts.ComputeConcurrency,
		clock:       opts.Clock,
		groups:      newGroupLocks(),
	}
}

func (s *Service) UsePoolService(pools waas.PoolService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools = pools
}

// UseMPCKeyService also (re)creates the poll session manager over keys.
func (s *Service) UseMPCKeyService(keys waas.MPCKeyService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poller != nil {
		s.poller.StopAll()
	}
	s.keys = keys
	s.poller = session.NewManager(keys, s.pollLane, s.clock)
}

func (s *Service) UseMPCWalletService(wallets waas.MPCWalletService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = wallets
}

// UseEngine wraps engine in a compute gateway bounded by its own semaphore, so
// polling never starves compute.
func (s *Service) UseEngine(engine protocol.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway = protocol.NewGateway(engine, semaphore.NewWeighted(s.computeSlot))
}

func (s *Service) UseIdentityStore(store storage.IdentityStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = store
}

func (s *Service) UseChain(adapter *chain.EthereumAdapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain = adapter
}

func (s *Service) PollInterval() time.Duration {
	return s.interval
}

func (s *Service) poolService() (waas.PoolService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pools == nil {
		return nil, protocol.NewNotInitializedError("PoolService")
	}
	return s.pools, nil
}

func (s *Service) keyService() (waas.MPCKeyService, *session.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keys == nil {
		return nil, nil, protocol.NewNotInitializedError("MPCKeyService")
	}
	return s.keys, s.poller, nil
}

func (s *Service) walletService() (waas.MPCWalletService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wallets == nil {
		return nil, protocol.NewNotInitializedError("MPCWalletService")
	}
	return s.wallets, nil
}

func (s *Service) computeGateway() (*protocol.Gateway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gateway == nil {
		return nil, protocol.NewNotInitializedError("MPCSdk")
	}
	return s.gateway, nil
}

func (s *Service) identityStore() (storage.IdentityStore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil, protocol.NewNotInitializedError("IdentityStore")
	}
	return s.identity, nil
}

func (s *Service) chainAdapter() (*chain.EthereumAdapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chain == nil {
		return nil, protocol.NewNotInitializedError("ChainAdapter")
	}
	return s.chain, nil
}

// optionalChain 可选的链适配器；未配置时返回 nil
func (s *Service) optionalChain() *chain.EthereumAdapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chain
}

func (s *Service) newLifecycle(flow Flow) *Lifecycle {
	return NewLifecycle(flow, s.clock, s.observe)
}

func (s *Service) observe(l *Lifecycle, t Transition) {
	metrics.ObserveFlow(string(l.Flow), string(t.To), l.Elapsed(t.At))
	log.Debug().
		Str("flow", string(l.Flow)).
		Str("flow_id", l.ID).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Msg("Flow state changed")
}

// fail marks the flow failed and returns err unmodified.
func (s *Service) fail(l *Lifecycle, err error) error {
	if l.State().Terminal() {
		return err
	}
	_ = l.Fail(err)
	log.Error().Err(err).Str("flow", string(l.Flow)).Str("flow_id", l.ID).Msg("Flow failed")
	return err
}
