package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/yeisme/cloudvault/pkg/internal/store"
)

// Usage 配额使用情况.
type Usage struct {
	Used      int64   `json:"used"`
	Limit     int64   `json:"limit"`
	Remaining int64   `json:"remaining"`
	Percent   float64 `json:"percent"`
	Human     string  `json:"human"` // 如 "1.2 GiB / 5.0 GiB"
}

// Overview 用户统计汇总.
type Overview struct {
	Usage   Usage              `json:"usage"`
	Summary *store.FileSummary `json:"summary"`
	Types   []store.TypeStat   `json:"types"`
}

// StatsService 只读统计.
type StatsService struct {
	store *store.Store
}

// Usage 返回配额使用情况，百分比保留两位小数.
func (s *StatsService) Usage(ctx context.Context, userID string) (*Usage, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}

		return nil, fault("load user", err)
	}

	out := &Usage{
		Used:      u.StorageUsed,
		Limit:     u.StorageLimit,
		Remaining: u.Remaining(),
		Human:     humanize.IBytes(uint64(max(u.StorageUsed, 0))) + " / " + humanize.IBytes(uint64(max(u.StorageLimit, 0))),
	}

	if u.StorageLimit > 0 {
		out.Percent = math.Round(float64(u.StorageUsed)/float64(u.StorageLimit)*10000) / 100
	}

	return out, nil
}

// Overview 返回配额、状态汇总与类型分布.
func (s *StatsService) Overview(ctx context.Context, userID string) (*Overview, error) {
	usage, err := s.Usage(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum, err := s.store.Summary(ctx, userID)
	if err != nil {
		return nil, fault("summarize files", err)
	}

	types, err := s.store.TypeDistribution(ctx, userID)
	if err != nil {
		return nil, fault("type distribution", err)
	}

	return &Overview{Usage: *usage, Summary: sum, Types: types}, nil
}
