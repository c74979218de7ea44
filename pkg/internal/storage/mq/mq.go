// Package mq 提供基于 Watermill 的统一消息队列客户端.
// 通过工厂注册支持多种实现：
//   - nats：NATS（可选 JetStream 持久化），用于多实例部署
//   - redis：Redis Pub/Sub
//   - gochannel：进程内 pub/sub，用于单实例与测试
//
// 使用示例：
//
//	client, err := mq.New(ctx, cfg.MQ, cfg.Metrics)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	msg := message.NewMessage(watermill.NewUUID(), []byte("hello"))
//	err = client.Publish(ctx, "cv.file.stored", msg)
package mq

import (
	"context"
	"fmt"
	"sort"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yeisme/cloudvault/pkg/configs"
	nlog "github.com/yeisme/cloudvault/pkg/log"
)

// Factory 定义创建 Publisher + Subscriber 的工厂函数.
type Factory func(ctx context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error)

var (
	factories = map[configs.MQType]Factory{}
)

// RegisterFactory 注册指定 MQType 的工厂.
func RegisterFactory(t configs.MQType, f Factory) {
	factories[t] = f
}

// GetRegisteredMQTypes 返回已注册的 MQ 类型（有序）.
func GetRegisteredMQTypes() []configs.MQType {
	types := make([]configs.MQType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// Client 封装 watermill Publisher 与 Subscriber.
type Client struct {
	kind       configs.MQType
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter
	metrics    *metrics.PrometheusMetricsBuilder
}

// New 按配置创建 MQ 客户端. registerer 非空时为发布/订阅与 router 挂载 watermill 指标.
func New(ctx context.Context, cfg configs.MQConfig, registerer prometheus.Registerer) (*Client, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported mq type: %s", cfg.Type)
	}

	logger := NewLoggerAdapter(nlog.Logger())

	pub, sub, err := factory(ctx, &cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init mq (%s): %w", cfg.Type, err)
	}

	c := &Client{kind: cfg.Type, publisher: pub, subscriber: sub, logger: logger}

	if registerer != nil {
		builder := metrics.NewPrometheusMetricsBuilder(registerer, "cloudvault", "mq")

		if c.publisher, err = builder.DecoratePublisher(pub); err != nil {
			return nil, fmt.Errorf("decorate publisher with metrics: %w", err)
		}

		if c.subscriber, err = builder.DecorateSubscriber(sub); err != nil {
			return nil, fmt.Errorf("decorate subscriber with metrics: %w", err)
		}

		c.metrics = &builder
	}

	nlog.Logger().Info().Str("type", string(cfg.Type)).Msg("MQ 客户端已初始化")

	return c, nil
}

// NewWithPubSub 使用现成的 Publisher/Subscriber 构造客户端，便于测试注入.
func NewWithPubSub(kind configs.MQType, pub message.Publisher, sub message.Subscriber) *Client {
	return &Client{kind: kind, publisher: pub, subscriber: sub, logger: NewLoggerAdapter(nlog.Logger())}
}

// Type 返回 MQ 类型.
func (c *Client) Type() configs.MQType {
	return c.kind
}

// Publisher 返回底层 Publisher.
func (c *Client) Publisher() message.Publisher {
	return c.publisher
}

// Subscriber 返回底层 Subscriber.
func (c *Client) Subscriber() message.Subscriber {
	return c.subscriber
}

// Logger 返回 watermill 日志适配器.
func (c *Client) Logger() watermill.LoggerAdapter {
	return c.logger
}

// NewRouter 创建挂载了指标（若启用）的 watermill Router，供后台消费者注册 handler.
func (c *Client) NewRouter(cfg message.RouterConfig) (*message.Router, error) {
	router, err := message.NewRouter(cfg, c.logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	if c.metrics != nil {
		c.metrics.AddPrometheusRouterMetrics(router)
	}

	return router, nil
}

// Publish 便捷发布.
func (c *Client) Publish(ctx context.Context, topic string, msgs ...*message.Message) error {
	if c == nil || c.publisher == nil {
		return fmt.Errorf("mq publisher not initialized")
	}

	for _, m := range msgs {
		m.SetContext(ctx)
	}

	if err := c.publisher.Publish(topic, msgs...); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	return nil
}

// Subscribe 便捷订阅.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if c == nil || c.subscriber == nil {
		return nil, fmt.Errorf("mq subscriber not initialized")
	}

	return c.subscriber.Subscribe(ctx, topic)
}

// HealthCheck 检查客户端是否可用.
func (c *Client) HealthCheck(_ context.Context) error {
	if c == nil || c.publisher == nil || c.subscriber == nil {
		return fmt.Errorf("mq client not initialized")
	}

	return nil
}

// Close 关闭资源.
func (c *Client) Close() error {
	var err error

	if c.publisher != nil {
		if e := c.publisher.Close(); e != nil {
			err = e
		}
	}

	// gochannel 的 Publisher 与 Subscriber 是同一实例，重复关闭是幂等的
	if c.subscriber != nil {
		if e := c.subscriber.Close(); e != nil {
			err = e
		}
	}

	return err
}
