package storage

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DeviceNameKey 已注册设备名称的持久化键
const DeviceNameKey = "device_name"

// IdentityStore 设备身份键值存储；ok=false 表示键不存在
type IdentityStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key string, value string) error
}

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Options 存储构造参数
type Options struct {
	Driver    string
	RedisAddr string
	RedisDB   int
	KeyPrefix string
}

// NewIdentityStore 按驱动创建身份存储
func NewIdentityStore(opts Options) (IdentityStore, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverRedis:
		if opts.RedisAddr == "" {
			return nil, errors.New("redis address is required for the redis identity store")
		}
		client := redis.NewClient(&redis.Options{
			Addr: opts.RedisAddr,
			DB:   opts.RedisDB,
		})
		return NewRedisStore(client, opts.KeyPrefix), nil
	default:
		return nil, errors.Errorf("unknown identity store driver %q", opts.Driver)
	}
}

// MemoryStore 进程内存储，进程退出后丢失
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
