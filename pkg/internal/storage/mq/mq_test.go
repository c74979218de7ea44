package mq_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/storage/mq"
)

func newGoChannelClient(t *testing.T, reg prometheus.Registerer) *mq.Client {
	t.Helper()

	cfg := configs.MQConfig{Type: configs.MQTypeGoChannel, GoChannel: configs.MQGoChannelConfig{OutputBuffer: 16}}

	client, err := mq.New(context.Background(), cfg, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestGoChannelPublishSubscribe(t *testing.T) {
	client := newGoChannelClient(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := client.Subscribe(ctx, "cv.test")
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewUUID(), []byte("hello"))
	msg.Metadata.Set("k", "v")
	require.NoError(t, client.Publish(ctx, "cv.test", msg))

	select {
	case got := <-ch:
		assert.Equal(t, []byte("hello"), []byte(got.Payload))
		assert.Equal(t, "v", got.Metadata.Get("k"))
		got.Ack()
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestRouterWithMetrics(t *testing.T) {
	client := newGoChannelClient(t, prometheus.NewRegistry())

	router, err := client.NewRouter(message.RouterConfig{})
	require.NoError(t, err)

	done := make(chan string, 1)

	router.AddNoPublisherHandler("test", "cv.router", client.Subscriber(), func(m *message.Message) error {
		done <- string(m.Payload)

		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() { _ = router.Run(ctx) }()

	<-router.Running()

	require.NoError(t, client.Publish(ctx, "cv.router", message.NewMessage(watermill.NewUUID(), []byte("x"))))

	select {
	case p := <-done:
		assert.Equal(t, "x", p)
	case <-ctx.Done():
		t.Fatal("handler not invoked")
	}

	require.NoError(t, router.Close())
}

func TestUnknownMQType(t *testing.T) {
	_, err := mq.New(context.Background(), configs.MQConfig{Type: "kafka"}, nil)
	require.Error(t, err)
	assert.Contains(t, mq.GetRegisteredMQTypes(), configs.MQTypeGoChannel)
}
