// Package app 负责进程生命周期：加载配置、构造依赖、启动 HTTP 服务、MQ 消费者与定时任务，并在收到信号时优雅退出.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yeisme/cloudvault/pkg/api"
	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/handle"
	"github.com/yeisme/cloudvault/pkg/internal/jobs"
	"github.com/yeisme/cloudvault/pkg/internal/service"
	"github.com/yeisme/cloudvault/pkg/internal/storage"
	"github.com/yeisme/cloudvault/pkg/internal/store"
	"github.com/yeisme/cloudvault/pkg/internal/worker"
	"github.com/yeisme/cloudvault/pkg/log"
	"github.com/yeisme/cloudvault/pkg/metrics"
	"github.com/yeisme/cloudvault/pkg/scheduler"
	"github.com/yeisme/cloudvault/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

// App 应用实例.
type App struct {
	Engine    *gin.Engine
	Services  *service.Services
	Scheduler *scheduler.Scheduler

	config  *configs.AppConfig
	storage *storage.Manager
	debug   *gin.Engine // 独立的 metrics/pprof 引擎
	router  *message.Router
	logger  zerolog.Logger
}

// Bootstrap 加载配置并初始化日志、追踪与指标，CLI 子命令与 NewApp 共用.
func Bootstrap(configPath string) (*configs.AppConfig, error) {
	if err := configs.InitConfig(configPath); err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}

	log.Init()

	cfg := configs.GetConfig()

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	if err := tracing.InitTracer(cfg.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if err := metrics.InitMetrics(cfg.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return cfg, nil
}

// OpenStore 连接全部存储后端并迁移元数据表结构.
func OpenStore(ctx context.Context, cfg *configs.AppConfig) (*storage.Manager, *store.Store, error) {
	var reg prometheus.Registerer
	if cfg.Metrics.Enabled {
		reg = metrics.GetRegistry()
	}

	mgr, err := storage.New(ctx, cfg, reg)
	if err != nil {
		return nil, nil, err
	}

	st := store.New(mgr.DB.GetDB())
	if err := st.Migrate(ctx); err != nil {
		_ = mgr.Close()

		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return mgr, st, nil
}

// NewApp 构造应用：存储、服务、消费者、定时任务与 HTTP 引擎.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	cfg, err := Bootstrap(configPath)
	if err != nil {
		return nil, err
	}

	mgr, st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, storage: mgr, logger: log.Component("app")}

	a.Services = service.New(service.Deps{
		Config:    cfg,
		Store:     st,
		Objects:   mgr.S3,
		Cache:     mgr.KV.KVStore,
		Publisher: mgr.MQ.Publisher(),
	})

	if err := a.initWorkers(); err != nil {
		_ = mgr.Close()

		return nil, err
	}

	if err := a.initScheduler(); err != nil {
		_ = mgr.Close()

		return nil, err
	}

	a.Engine = api.NewEngine(api.Deps{
		Config:   cfg,
		Services: a.Services,
		Cache:    mgr.KV.KVStore,
		Handler: handle.Options{
			Scheduler: a.Scheduler,
			Health: map[string]handle.HealthChecker{
				"db": mgr.DB,
				"s3": mgr.S3,
				"kv": mgr.KV,
				"mq": mgr.MQ,
			},
		},
	})

	if cfg.Metrics.Enabled && cfg.Metrics.Endpoint != "" {
		a.debug = gin.New()
		a.debug.Use(gin.Recovery())
		_ = metrics.StartMetricsServer(cfg.Metrics, a.debug)
	}

	return a, nil
}

func (a *App) initWorkers() error {
	r, err := a.storage.MQ.NewRouter(message.RouterConfig{CloseTimeout: shutdownTimeout})
	if err != nil {
		return fmt.Errorf("create mq router: %w", err)
	}

	err = worker.Register(r, a.storage.MQ.Subscriber(), a.Services.Rescan, worker.Options{
		Scan:   a.config.Scan,
		Events: a.config.Events,
	}, a.storage.MQ.Logger())
	if err != nil {
		return fmt.Errorf("register workers: %w", err)
	}

	a.router = r

	return nil
}

func (a *App) initScheduler() error {
	s, err := scheduler.New()
	if err != nil {
		return err
	}

	if err := jobs.RegisterCronJobs(s, a.Services, a.config.Jobs); err != nil {
		_ = s.Stop()

		return fmt.Errorf("register cron jobs: %w", err)
	}

	a.Scheduler = s

	return nil
}

// Run 启动全部组件并阻塞，ctx 取消后优雅退出.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port),
		Handler:           a.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      a.config.Server.GetTimeoutDuration(),
	}

	servers := []*http.Server{srv}
	if a.debug != nil {
		servers = append(servers, &http.Server{
			Addr:              a.config.Metrics.Endpoint,
			Handler:           a.debug,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, s := range servers {
		g.Go(func() error {
			a.logger.Info().Str("addr", s.Addr).Msg("http server listening")

			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", s.Addr, err)
			}

			return nil
		})
	}

	g.Go(func() error {
		if err := a.router.Run(gctx); err != nil {
			return fmt.Errorf("mq router: %w", err)
		}

		return nil
	})

	a.Scheduler.Start()

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		errs := []error{a.Scheduler.Stop(), a.router.Close()}
		for _, s := range servers {
			errs = append(errs, s.Shutdown(shutdownCtx))
		}

		return errors.Join(errs...)
	})

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(err, a.storage.Close(), tracing.ShutdownTracer(shutdownCtx))
}
