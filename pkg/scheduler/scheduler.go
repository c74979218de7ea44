// Package scheduler 基于 gocron/v2 的定时任务调度，记录每个任务的运行状态供管理接口查看.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/yeisme/cloudvault/pkg/log"
)

// ErrJobNotFound 任务不存在.
var ErrJobNotFound = errors.New("job not found")

// JobStatus 任务状态.
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled" // 等待下次运行
	StatusRunning   JobStatus = "running"   // 正在运行
	StatusError     JobStatus = "error"     // 上次运行失败或 panic
)

// Task 任务函数，ctx 在调度器停止时取消.
type Task func(ctx context.Context) error

// JobInfo 任务信息，用于管理接口与 CLI 展示.
type JobInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CronExpr    string    `json:"cron_expr"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastElapsed string    `json:"last_elapsed,omitempty"`
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type entry struct {
	job  gocron.Job
	info JobInfo
}

// Scheduler 定时任务调度器.
type Scheduler struct {
	cron   gocron.Scheduler
	mu     sync.RWMutex
	jobs   map[string]*entry
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建调度器，opts 透传给 gocron.
func New(opts ...gocron.SchedulerOption) (*Scheduler, error) {
	cron, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron,
		jobs:   make(map[string]*entry),
		logger: log.Component("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// AddCron 注册 cron 任务，表达式为 6 段时包含秒字段.
// 同一任务不会并发运行，上一次未结束时跳过本次触发.
func (s *Scheduler) AddCron(name, cronExpr string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	withSeconds := len(strings.Fields(cronExpr)) == 6

	j, err := s.cron.NewJob(
		gocron.CronJob(cronExpr, withSeconds),
		gocron.NewTask(func() { s.run(name, task) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	s.jobs[name] = &entry{
		job: j,
		info: JobInfo{
			ID:        j.ID().String(),
			Name:      name,
			CronExpr:  cronExpr,
			Status:    StatusScheduled,
			CreatedAt: time.Now(),
		},
	}

	s.logger.Info().Str("job", name).Str("cron", cronExpr).Msg("cron job added")

	return nil
}

// run 执行任务并记录状态，panic 视为失败.
func (s *Scheduler) run(name string, task Task) {
	start := time.Now()
	s.update(name, func(i *JobInfo) {
		i.Status = StatusRunning
		i.LastRun = start
	})

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()

		return task(s.ctx)
	}()

	elapsed := time.Since(start)

	s.update(name, func(i *JobInfo) {
		i.Runs++
		i.LastElapsed = elapsed.Round(time.Millisecond).String()

		if err != nil {
			i.Failures++
			i.Status = StatusError
			i.Error = err.Error()

			return
		}

		i.Status = StatusScheduled
		i.Error = ""
		i.LastSuccess = time.Now()
	})

	l := s.logger.With().Str("job", name).Dur("elapsed", elapsed).Logger()
	if err != nil {
		l.Error().Err(err).Msg("job failed")

		return
	}

	l.Debug().Msg("job finished")
}

func (s *Scheduler) update(name string, fn func(*JobInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.jobs[name]; ok {
		fn(&e.info)
	}
}

// RunNow 立即触发一次任务，不影响原有调度.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return e.job.RunNow()
}

// Remove 移除任务.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	if err := s.cron.RemoveJob(e.job.ID()); err != nil {
		return fmt.Errorf("remove job %s: %w", name, err)
	}

	delete(s.jobs, name)
	s.logger.Info().Str("job", name).Msg("job removed")

	return nil
}

// Info 返回单个任务信息.
func (s *Scheduler) Info(name string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[name]
	if !ok {
		return JobInfo{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return s.snapshot(e), nil
}

// Infos 返回全部任务信息，按名称排序.
func (s *Scheduler) Infos() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, s.snapshot(e))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func (s *Scheduler) snapshot(e *entry) JobInfo {
	info := e.info
	if next, err := e.job.NextRun(); err == nil {
		info.NextRun = next
	}

	return info
}

// Start 启动调度器.
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.Infos())).Msg("scheduler started")
	s.cron.Start()
}

// Stop 取消运行中任务的 ctx 并等待其结束.
func (s *Scheduler) Stop() error {
	s.cancel()

	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}

	s.logger.Info().Msg("scheduler stopped")

	return nil
}
