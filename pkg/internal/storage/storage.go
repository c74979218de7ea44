// Package storage 聚合元数据库、对象存储、KV 缓存与消息队列客户端.
// Manager 在进程启动时显式构造，并通过依赖注入传给服务、后台任务与 HTTP 中间件，没有全局单例.
//
// Example:
//
//	mgr, err := storage.New(ctx, cfg, metrics.GetRegistry())
//	if err != nil {
//		// 处理错误
//	}
//	defer mgr.Close()
//
//	st := store.New(mgr.DB.GetDB())
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yeisme/cloudvault/pkg/configs"
	dbc "github.com/yeisme/cloudvault/pkg/internal/storage/db"
	kvc "github.com/yeisme/cloudvault/pkg/internal/storage/kv"
	mqc "github.com/yeisme/cloudvault/pkg/internal/storage/mq"
	s3c "github.com/yeisme/cloudvault/pkg/internal/storage/s3"
	nlog "github.com/yeisme/cloudvault/pkg/log"
)

// Manager 聚合所有存储资源.
type Manager struct {
	DB *dbc.Client
	S3 *s3c.Client
	KV *kvc.Client
	MQ *mqc.Client
}

// New 按配置初始化全部存储客户端，任一失败则关闭已创建的客户端并返回错误.
// registerer 用于 DB 与 MQ 指标，metrics 未启用时传 nil.
func New(ctx context.Context, cfg *configs.AppConfig, registerer prometheus.Registerer) (*Manager, error) {
	m := &Manager{}

	var err error

	if m.DB, err = dbc.New(ctx, cfg.DB, registerer != nil); err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	if m.S3, err = s3c.New(ctx, cfg.S3); err != nil {
		_ = m.Close()

		return nil, fmt.Errorf("init s3: %w", err)
	}

	if m.KV, err = kvc.NewClient(ctx, cfg.KV); err != nil {
		_ = m.Close()

		return nil, fmt.Errorf("init kv: %w", err)
	}

	var mqReg prometheus.Registerer
	if cfg.Metrics.MQMetrics {
		mqReg = registerer
	}

	if m.MQ, err = mqc.New(ctx, cfg.MQ, mqReg); err != nil {
		_ = m.Close()

		return nil, fmt.Errorf("init mq: %w", err)
	}

	nlog.Logger().Info().Msg("storage manager initialized")

	return m, nil
}

// Close 按依赖逆序关闭所有客户端.
func (m *Manager) Close() error {
	var errs []error

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	if m.S3 != nil {
		errs = append(errs, m.S3.Close())
	}

	if m.DB != nil {
		errs = append(errs, m.DB.Close())
	}

	return errors.Join(errs...)
}
