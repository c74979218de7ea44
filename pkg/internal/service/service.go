// Package service 实现 cloudvault 的业务流程：上传编排、复扫、分享、文件管理、账户与配额.
//
// 所有服务在启动时显式构造并注入依赖，不读取全局单例.
package service

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/yeisme/cloudvault/pkg/configs"
	ctxPkg "github.com/yeisme/cloudvault/pkg/context"
	"github.com/yeisme/cloudvault/pkg/internal/media"
	"github.com/yeisme/cloudvault/pkg/internal/scan"
	"github.com/yeisme/cloudvault/pkg/internal/storage/kv"
	"github.com/yeisme/cloudvault/pkg/internal/storage/s3"
	"github.com/yeisme/cloudvault/pkg/internal/store"
	nlog "github.com/yeisme/cloudvault/pkg/log"
	"github.com/yeisme/cloudvault/pkg/token"
)

// Deps 服务依赖.
type Deps struct {
	Config  *configs.AppConfig
	Store   *store.Store
	Objects s3.Gateway
	// Cache 分享元数据缓存，可为空
	Cache kv.KVStore
	// Publisher 领域事件与复扫任务的发布端，可为空（此时不发布事件，复扫需另行注入 Rescans）
	Publisher message.Publisher
	// Rescans 复扫调度器，为空时若 Publisher 非空则使用基于 MQ 的实现
	Rescans RescanScheduler
	// Policy 复扫判定策略，为空时按配置创建
	Policy scan.RescanPolicy
	// Tokens 访问令牌签发器，为空时按 auth 配置创建
	Tokens *token.Issuer
	// Now 时钟，测试可替换
	Now func() time.Time
}

// Services 聚合全部业务服务.
type Services struct {
	Upload      *UploadService
	Rescan      *RescanService
	Files       *FileService
	Shares      *ShareService
	Auth        *AuthService
	Stats       *StatsService
	Quota       *QuotaAuditor
	Maintenance *MaintenanceService
}

// New 按依赖构造全部服务.
func New(d Deps) *Services {
	if d.Now == nil {
		d.Now = time.Now
	}

	opts := []scan.Option{scan.WithDangerousExtensions(
		append(append([]string{}, scan.DefaultDangerousExtensions...), d.Config.Upload.BlockedExtensions...)...)}
	if d.Config.Scan.StrictPE {
		opts = append(opts, scan.WithStrictPE())
	}

	scanner := scan.New(opts...)

	if d.Policy == nil {
		p, err := scan.NewPolicy(d.Config.Scan.RescanPolicy, scanner)
		if err != nil {
			// 配置加载时已校验，此处只会在手工构造配置时出现
			l := nlog.Component("service")
			l.Error().Err(err).Str("fallback", configs.RescanPolicyDeep).Msg("invalid rescan policy")

			p = scan.DeepPolicy{Scanner: scanner}
		}

		d.Policy = p
	}

	if d.Rescans == nil && d.Publisher != nil && d.Config.Scan.RescanEnabled {
		d.Rescans = NewMQRescanScheduler(d.Publisher, d.Config.Scan.RescanDelay, d.Now)
	}

	if d.Tokens == nil {
		d.Tokens = token.NewIssuer(d.Config.Auth.Secret, d.Config.Auth.Issuer, d.Config.Auth.TokenTTL)
	}

	processor := media.New(d.Objects, d.Config.Upload.ThumbnailMaxSide, d.Config.Upload.ThumbnailQuality,
		media.WithMaxPixels(d.Config.Upload.MaxImagePixels))

	ev := newEvents(d.Publisher, d.Config.Events)
	shares := newShareService(d, ev)

	return &Services{
		Upload: &UploadService{
			cfg:       d.Config.Upload,
			store:     d.Store,
			objects:   d.Objects,
			scanner:   scanner,
			processor: processor,
			rescans:   d.Rescans,
			events:    ev,
			now:       d.Now,
		},
		Rescan: &RescanService{
			store:    d.Store,
			objects:  d.Objects,
			policy:   d.Policy,
			shares:   shares,
			events:   ev,
			maxBytes: d.Config.Scan.RescanMaxBytes,
			now:      d.Now,
		},
		Files: &FileService{
			cfg:     d.Config.Upload,
			store:   d.Store,
			objects: d.Objects,
			shares:  shares,
			events:  ev,
		},
		Shares: shares,
		Auth: &AuthService{
			store:  d.Store,
			tokens: d.Tokens,
			limit:  d.Config.Upload.DefaultStorageLimit,
		},
		Stats: &StatsService{store: d.Store},
		Quota: &QuotaAuditor{store: d.Store, events: ev},
		Maintenance: &MaintenanceService{
			store:   d.Store,
			objects: d.Objects,
			shares:  shares,
			now:     d.Now,
		},
	}
}

// logger 返回带组件名的日志器.
func logger(ctx context.Context, component string) *zerolog.Logger {
	l := ctxPkg.WithTraceContext(ctx, nlog.Component(component))

	return &l
}
