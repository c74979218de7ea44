package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeisme/cloudvault/pkg/internal/store"
	nlog "github.com/yeisme/cloudvault/pkg/log"
	"github.com/yeisme/cloudvault/pkg/metrics"
	"github.com/yeisme/cloudvault/pkg/queue"
)

// Correction 一次配额修正.
type Correction struct {
	UserID   string `json:"user_id"`
	Previous int64  `json:"previous"`
	Actual   int64  `json:"actual"`
}

// QuotaAuditor 按未删除、未感染文件的大小之和校正用户已用空间.
type QuotaAuditor struct {
	store  *store.Store
	events *events
}

// Reconcile 校正全部用户，单个用户失败只记录日志.
func (a *QuotaAuditor) Reconcile(ctx context.Context) ([]Correction, error) {
	ids, err := a.store.ListUserIDs(ctx)
	if err != nil {
		return nil, fault("list users", err)
	}

	l := logger(ctx, "quota")

	var out []Correction

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		c, err := a.ReconcileUser(ctx, id)
		if err != nil {
			l.Warn().Err(err).Str("user_id", id).Msg("reconcile user failed")

			continue
		}

		if c != nil {
			out = append(out, *c)
		}
	}

	l.Info().Int("users", len(ids)).Int("corrected", len(out)).Msg("quota reconciliation finished")

	return out, nil
}

// ReconcileUser 校正单个用户，无需修正或遇到并发写入时返回 nil.
func (a *QuotaAuditor) ReconcileUser(ctx context.Context, userID string) (*Correction, error) {
	u, err := a.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}

		return nil, fault("load user", err)
	}

	actual, err := a.store.SumActiveUsage(ctx, userID)
	if err != nil {
		return nil, fault("sum usage", err)
	}

	if actual == u.StorageUsed {
		return nil, nil
	}

	swapped, err := a.store.SwapStorageUsed(ctx, userID, u.StorageUsed, actual)
	if err != nil {
		return nil, fault("correct usage", err)
	}

	if !swapped {
		logger(ctx, "quota").Debug().Str("user_id", userID).Msg("usage changed during reconciliation, skipped")

		return nil, nil
	}

	c := &Correction{UserID: userID, Previous: u.StorageUsed, Actual: actual}

	metrics.QuotaCorrections.Inc()
	nlog.Audit().
		Str("event", "quota.reconciled").
		Str("user_id", userID).
		Int64("previous", c.Previous).
		Int64("actual", c.Actual).
		Msg("storage usage corrected")

	a.events.quotaReconciled(ctx, queue.QuotaReconciledPayload{UserID: userID, Previous: c.Previous, Actual: c.Actual})

	return c, nil
}
