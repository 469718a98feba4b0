package config

import (
	"time"

	"github.com/kashguard/go-waas-device/internal/mpc/storage"
	"github.com/kashguard/go-waas-device/internal/util"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/rs/zerolog"
)

// WaaS 远程后端连接配置
type WaaS struct {
	Endpoint      string        `json:"endpoint"`
	TLSEnabled    bool          `json:"tls_enabled"`
	TLSCACertFile string        `json:"tls_ca_cert_file"`
	TLSCertFile   string        `json:"tls_cert_file"`
	TLSKeyFile    string        `json:"-"`
	Timeout       time.Duration `json:"timeout"`
	KeepAlive     time.Duration `json:"keep_alive"`
	ProbePool     string        `json:"probe_pool"`
}

func (w WaaS) ClientConfig() waas.ClientConfig {
	return waas.ClientConfig{
		Endpoint:      w.Endpoint,
		Timeout:       w.Timeout,
		KeepAlive:     w.KeepAlive,
		TLSEnabled:    w.TLSEnabled,
		TLSCACertFile: w.TLSCACertFile,
		TLSCertFile:   w.TLSCertFile,
		TLSKeyFile:    w.TLSKeyFile,
	}
}

type Poll struct {
	Interval time.Duration `json:"interval"`
}

// Lanes 后台执行通道并发度，0 表示不限制
type Lanes struct {
	Poll    int64 `json:"poll"`
	Compute int64 `json:"compute"`
}

// Identity 设备身份持久化
type Identity struct {
	Driver    string `json:"driver"`
	RedisAddr string `json:"redis_addr"`
	RedisDB   int    `json:"redis_db"`
	KeyPrefix string `json:"key_prefix"`
}

func (i Identity) Options() storage.Options {
	return storage.Options{
		Driver:    i.Driver,
		RedisAddr: i.RedisAddr,
		RedisDB:   i.RedisDB,
		KeyPrefix: i.KeyPrefix,
	}
}

type Chain struct {
	ChainID int64 `json:"chain_id"`
}

type Logger struct {
	Level              zerolog.Level `json:"level"`
	PrettyPrintConsole bool          `json:"pretty_print_console"`
}

// DeviceConfig 设备 SDK 全局配置
type DeviceConfig struct {
	WaaS     WaaS     `json:"waas"`
	Poll     Poll     `json:"poll"`
	Lanes    Lanes    `json:"lanes"`
	Identity Identity `json:"identity"`
	Chain    Chain    `json:"chain"`
	Logger   Logger   `json:"logger"`
}

// DefaultDeviceConfigFromEnv 从环境变量读取配置，未设置时使用默认值
func DefaultDeviceConfigFromEnv() DeviceConfig {
	return DeviceConfig{
		WaaS: WaaS{
			Endpoint:      util.GetEnv("WAAS_ENDPOINT", "localhost:9090"),
			TLSEnabled:    util.GetEnvAsBool("WAAS_TLS_ENABLED", false),
			TLSCACertFile: util.GetEnv("WAAS_TLS_CA_CERT_FILE", "certs/ca.crt"),
			TLSCertFile:   util.GetEnv("WAAS_TLS_CERT_FILE", ""),
			TLSKeyFile:    util.GetEnv("WAAS_TLS_KEY_FILE", ""),
			Timeout:       util.GetEnvAsDuration("WAAS_TIMEOUT", 20*time.Second),
			KeepAlive:     util.GetEnvAsDuration("WAAS_KEEPALIVE", 30*time.Second),
			ProbePool:     util.GetEnv("WAAS_PROBE_POOL", ""),
		},
		Poll: Poll{
			Interval: util.GetEnvAsDuration("DEVICE_POLL_INTERVAL", 200*time.Millisecond),
		},
		Lanes: Lanes{
			Poll:    util.GetEnvAsInt64("DEVICE_POLL_CONCURRENCY", 0),
			Compute: util.GetEnvAsInt64("DEVICE_COMPUTE_CONCURRENCY", 1),
		},
		Identity: Identity{
			Driver:    util.GetEnv("DEVICE_IDENTITY_DRIVER", storage.DriverMemory),
			RedisAddr: util.GetEnv("DEVICE_IDENTITY_REDIS_ADDR", "localhost:6379"),
			RedisDB:   util.GetEnvAsInt("DEVICE_IDENTITY_REDIS_DB", 0),
			KeyPrefix: util.GetEnv("DEVICE_IDENTITY_KEY_PREFIX", "mpc:device:"),
		},
		Chain: Chain{
			ChainID: util.GetEnvAsInt64("DEVICE_CHAIN_ID", 1),
		},
		Logger: Logger{
			Level:              util.GetEnvAsLogLevel("LOG_LEVEL", zerolog.InfoLevel),
			PrettyPrintConsole: util.GetEnvAsBool("LOG_PRETTY_PRINT_CONSOLE", false),
		},
	}
}
