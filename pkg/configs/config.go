// Package configs 管理 cloudvault 的全部配置：服务器、日志、元数据库、对象存储、消息队列、KV 缓存，
// 以及上传、扫描、分享等领域参数.
// 支持多种配置格式（YAML、JSON、TOML、dotenv），环境变量前缀为 CLOUDVAULT，并可启用热重载.
//
// Example:
//
//	if err := configs.InitConfig("./"); err != nil {
//		log.Fatal(err)
//	}
//
//	cfg := configs.GetConfig()
//	fmt.Println(cfg.Server.Port, cfg.Upload.MaxFileSize)
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/yeisme/cloudvault/pkg/rule"
)

// AppVersion 应用版本号，用于追踪资源属性与 S3 客户端标识.
const AppVersion = "0.3.0"

// EnvPrefix 环境变量前缀.
const EnvPrefix = "CLOUDVAULT"

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		Server         ServerConfig         `mapstructure:"server"`          // 服务器端口、超时等
		Log            LogConfig            `mapstructure:"log"`             // 日志
		DB             DBConfig             `mapstructure:"db"`              // 元数据库
		S3             S3Config             `mapstructure:"s3"`              // 对象存储
		MQ             MQConfig             `mapstructure:"mq"`              // 消息队列
		KV             KVConfig             `mapstructure:"kv"`              // 键值缓存
		Auth           AuthConfig           `mapstructure:"auth"`            // 认证
		RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`      // 限流
		CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"` // 熔断
		Events         EventsConfig         `mapstructure:"events"`          // 领域事件开关
		Metrics        MetricsConfig        `mapstructure:"metrics"`         // 指标
		Tracing        TracingConfig        `mapstructure:"tracing"`         // 追踪
		Upload         UploadConfig         `mapstructure:"upload"`          // 上传校验与配额
		Scan           ScanConfig           `mapstructure:"scan"`            // 内容扫描与后台复扫
		Share          ShareConfig          `mapstructure:"share"`           // 分享链接
		Jobs           JobsConfig           `mapstructure:"jobs"`            // 定时任务
	}
)

var (
	// globalConfig 全局配置实例.
	globalConfig AppConfig
	// appViper 全局 Viper 实例.
	appViper *viper.Viper
	// mu 保护热重载时的并发读写.
	mu sync.RWMutex
)

// InitConfig 加载应用程序配置，支持多种格式(yaml、json、toml、dotenv)并启用热重载.
// path 可以是配置文件，也可以是目录；目录下找不到配置文件时仅使用默认值与环境变量.
func InitConfig(path string) error {
	v := viper.New()
	setAllDefaults(v)

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(path)
		v.AddConfigPath(filepath.Join(path, "configs"))

		exts := []string{"yaml", "yml", "json", "toml", "env", "dotenv"}

		for _, ext := range exts {
			cfg := filepath.Join(path, "config."+ext)
			if _, err := os.Stat(cfg); err == nil {
				v.SetConfigFile(cfg)

				break
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return err
	}

	mu.Lock()
	globalConfig = *cfg
	appViper = v
	mu.Unlock()

	reloadConfigs(v, cfg.Server.ReloadConfig)

	return nil
}

// Load 从给定 viper 实例解析并校验配置，不修改全局状态，便于测试与 CLI 使用.
func Load(v *viper.Viper) (*AppConfig, error) {
	setAllDefaults(v)

	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := rule.ValidateStruct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	defaults := []interface{ setDefaults(*viper.Viper) }{
		&ServerConfig{},
		&LogConfig{},
		&DBConfig{},
		&S3Config{},
		&MQConfig{},
		&KVConfig{},
		&AuthConfig{},
		&RateLimitConfig{},
		&CircuitBreakerConfig{},
		&EventsConfig{},
		&MetricsConfig{},
		&TracingConfig{},
		&UploadConfig{},
		&ScanConfig{},
		&ShareConfig{},
		&JobsConfig{},
	}

	for _, d := range defaults {
		d.setDefaults(v)
	}
}

func reloadConfigs(v *viper.Viper, isHotReload bool) {
	if !isHotReload {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Println("Config file changed:", e.Name)

		cfg, err := decode(v)
		if err != nil {
			fmt.Printf("Error reloading config: %v\n", err)

			return
		}

		mu.Lock()
		globalConfig = *cfg
		mu.Unlock()
	})
	v.WatchConfig()
}

// GetConfig 返回全局配置的快照.
func GetConfig() *AppConfig {
	mu.RLock()
	defer mu.RUnlock()

	cfg := globalConfig

	return &cfg
}

// GetViper 返回全局 Viper 实例.
func GetViper() *viper.Viper {
	mu.RLock()
	defer mu.RUnlock()

	return appViper
}
