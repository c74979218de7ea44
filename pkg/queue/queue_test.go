package queue

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillMessageRoundTrip(t *testing.T) {
	nb := time.Now().Add(30 * time.Second).UTC().Truncate(time.Millisecond)

	msg, err := NewWatermillMessage(TopicScanRescanRequested, RescanRequestedPayload{
		FileID: "f1", OwnerID: "u1", StorageKey: "files/u1/1-a.png", NotBefore: nb,
	}, WithTraceID("trace-1"))
	require.NoError(t, err)

	assert.Equal(t, TopicScanRescanRequested, msg.Metadata.Get("topic"))
	assert.Equal(t, "trace-1", msg.Metadata.Get("trace_id"))
	assert.Equal(t, Producer, msg.Metadata.Get("producer"))

	env, err := ParseRescanRequested(msg)
	require.NoError(t, err)
	assert.Equal(t, "f1", env.Payload.FileID)
	assert.True(t, nb.Equal(env.Payload.NotBefore))
	assert.Equal(t, PayloadVersionV1, env.Header.Version)
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := ps.Subscribe(ctx, TopicFileInfected)
	require.NoError(t, err)

	require.NoError(t, PublishFileInfected(ctx, ps, FileInfectedPayload{FileID: "f1", Reason: "ELF"}))

	select {
	case m := <-ch:
		env, err := ParseFileInfected(m)
		require.NoError(t, err)
		assert.Equal(t, "ELF", env.Payload.Reason)
		m.Ack()
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestAllTopicsUsesPrefix(t *testing.T) {
	for _, topic := range AllTopics() {
		assert.Regexp(t, `^cv\.[a-z]+\.`, topic)
	}
}
