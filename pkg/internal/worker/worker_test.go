package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/service"
	"github.com/yeisme/cloudvault/pkg/internal/worker"
	"github.com/yeisme/cloudvault/pkg/queue"
)

type fakeRescanner struct {
	mu    sync.Mutex
	calls []string
	err   error
	done  chan string
}

func (f *fakeRescanner) Process(_ context.Context, fileID string) (*service.RescanResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fileID)
	err := f.err
	f.mu.Unlock()

	if f.done != nil {
		f.done <- fileID
	}

	if err != nil {
		return nil, err
	}

	return &service.RescanResult{FileID: fileID}, nil
}

func (f *fakeRescanner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

func request(t *testing.T, fileID string, notBefore time.Time) *message.Message {
	t.Helper()

	msg, err := queue.NewWatermillMessage(queue.TopicScanRescanRequested, queue.RescanRequestedPayload{
		FileID:    fileID,
		NotBefore: notBefore,
	})
	require.NoError(t, err)

	return msg
}

func TestHandleErrorClassification(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"ok", nil, false},
		{"not found is dropped", service.ErrNotFound, false},
		{"internal is retried", fmt.Errorf("load file: %w: %w", service.ErrInternal, errors.New("db down")), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &fakeRescanner{err: tc.err}
			w := worker.NewRescanWorker(r, time.Minute, func() time.Time { return now })

			// not_before 已过，不等待
			err := w.Handle(request(t, "f1", now.Add(-time.Second)))
			assert.Equal(t, tc.wantErr, err != nil)
			assert.Equal(t, []string{"f1"}, r.Calls())
		})
	}
}

func TestHandleDropsMalformed(t *testing.T) {
	r := &fakeRescanner{}
	w := worker.NewRescanWorker(r, time.Minute, nil)

	assert.NoError(t, w.Handle(message.NewMessage("1", []byte("{not json"))))
	assert.NoError(t, w.Handle(request(t, "", time.Time{})))
	assert.Empty(t, r.Calls())
}

func TestHandleWaitIsCappedAndCancellable(t *testing.T) {
	now := time.Now()
	r := &fakeRescanner{}

	capped := worker.NewRescanWorker(r, 20*time.Millisecond, func() time.Time { return now })
	start := time.Now()
	require.NoError(t, capped.Handle(request(t, "f1", now.Add(time.Hour))))
	assert.Less(t, time.Since(start), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := request(t, "f2", now.Add(time.Hour))
	msg.SetContext(ctx)

	long := worker.NewRescanWorker(r, time.Hour, func() time.Time { return now })
	assert.ErrorIs(t, long.Handle(msg), context.Canceled)
	assert.Equal(t, []string{"f1"}, r.Calls())
}

func TestRegisterConsumesFromRouter(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })

	router, err := message.NewRouter(message.RouterConfig{}, watermill.NopLogger{})
	require.NoError(t, err)

	r := &fakeRescanner{done: make(chan string, 1)}
	require.NoError(t, worker.Register(router, ps, r, worker.Options{
		Scan:   configs.ScanConfig{RescanEnabled: true, RescanMaxWait: time.Second},
		Events: configs.EventsConfig{Enabled: true},
	}, watermill.NopLogger{}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() { _ = router.Run(ctx) }()
	t.Cleanup(func() { _ = router.Close() })

	<-router.Running()

	require.NoError(t, queue.PublishRescanRequested(ctx, ps, queue.RescanRequestedPayload{FileID: "f9"}))
	require.NoError(t, queue.PublishFileDeleted(ctx, ps, queue.FileDeletedPayload{FileID: "f9"}))

	select {
	case id := <-r.done:
		assert.Equal(t, "f9", id)
	case <-ctx.Done():
		t.Fatal("rescan request not consumed")
	}
}
