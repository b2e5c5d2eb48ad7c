package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"team-presence/pkg/common"
)

// ReconnectConfig 重连配置
type ReconnectConfig struct {
	MaxRetries    int           // 最大重试次数 (0 = 无限重试)
	InitialDelay  time.Duration // 初始延迟
	MaxDelay      time.Duration // 最大延迟
	BackoffFactor float64       // 退避因子
}

// DefaultReconnectConfig 默认重连配置
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    0,
		InitialDelay:  1 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Next 返回下一次重试的等待时间
func (c ReconnectConfig) Next(delay time.Duration) time.Duration {
	if delay <= 0 {
		return c.InitialDelay
	}
	next := time.Duration(float64(delay) * c.BackoffFactor)
	if next > c.MaxDelay {
		next = c.MaxDelay
	}
	return next
}

// AMQPPublisher 把领域事件发布到 topic exchange, routing key 为事件类型
type AMQPPublisher struct {
	url      string
	exchange string
	logger   common.Logger
	retry    ReconnectConfig

	// sem 容量为 1, 保护下面的字段; 只在交换指针时短暂持有
	sem     chan struct{}
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// NewAMQPPublisher 连接 broker 并声明 exchange
func NewAMQPPublisher(url, exchange string, logger common.Logger) (*AMQPPublisher, error) {
	p := newAMQPPublisher(url, exchange, logger)
	conn, channel, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.install(conn, channel)
	return p, nil
}

func newAMQPPublisher(url, exchange string, logger common.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:      url,
		exchange: exchange,
		logger:   logger,
		retry:    DefaultReconnectConfig(),
		sem:      make(chan struct{}, 1),
	}
}

// lock 获取锁, ctx 结束时放弃
func (p *AMQPPublisher) lock(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AMQPPublisher) unlock() { <-p.sem }

// dial 建立连接和 channel 并声明 exchange, 不持有锁
func (p *AMQPPublisher) dial() (*amqp.Connection, *amqp.Channel, error) {
	p.logger.Info("Connecting to AMQP exchange %s...", p.exchange)

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 30 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return conn, channel, nil
}

// install 换上新连接并开始监听断线; 已关闭时丢弃新连接
func (p *AMQPPublisher) install(conn *amqp.Connection, channel *amqp.Channel) bool {
	p.lock(context.Background())
	defer p.unlock()

	if p.closed {
		channel.Close()
		conn.Close()
		return false
	}
	p.conn = conn
	p.channel = channel

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	go p.monitor(closeCh)

	p.logger.Info("✅ AMQP publisher ready")
	return true
}

// monitor 连接断开后按指数退避重连
func (p *AMQPPublisher) monitor(closeCh <-chan *amqp.Error) {
	amqpErr, ok := <-closeCh
	if !ok {
		return
	}
	p.logger.Warn("AMQP connection closed: %v", amqpErr)

	p.lock(context.Background())
	p.conn, p.channel = nil, nil
	p.unlock()

	var delay time.Duration
	for attempt := 1; ; attempt++ {
		if p.isClosed() {
			return
		}
		conn, channel, err := p.dial()
		if err == nil {
			if p.install(conn, channel) {
				p.logger.Info("AMQP reconnected after %d attempt(s)", attempt)
			}
			return
		}

		if p.retry.MaxRetries > 0 && attempt >= p.retry.MaxRetries {
			p.logger.Error("AMQP reconnect gave up after %d attempts: %v", attempt, err)
			return
		}
		delay = p.retry.Next(delay)
		p.logger.Warn("AMQP reconnect attempt %d failed, retrying in %v: %v", attempt, delay, err)
		time.Sleep(delay)
	}
}

func (p *AMQPPublisher) isClosed() bool {
	p.lock(context.Background())
	defer p.unlock()
	return p.closed
}

// current 读取当前 channel, ctx 结束时放弃
func (p *AMQPPublisher) current(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	if err := p.lock(ctx); err != nil {
		return nil, nil, err
	}
	defer p.unlock()
	return p.conn, p.channel, nil
}

// Publish 发布事件
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, channel, err := p.current(ctx)
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", event.Type, err)
	}
	if channel == nil {
		return fmt.Errorf("amqp publisher not connected")
	}

	return channel.Publish(
		p.exchange, // exchange
		event.Type, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.MatchID.String(),
			Timestamp:    event.OccurredAt,
			Type:         event.Type,
			Body:         body,
		},
	)
}

// Ping 连接是否可用
func (p *AMQPPublisher) Ping(ctx context.Context) error {
	conn, _, err := p.current(ctx)
	if err != nil {
		return err
	}
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("amqp connection is down")
	}
	return nil
}

// Close 关闭 channel 和连接
func (p *AMQPPublisher) Close() error {
	p.lock(context.Background())
	defer p.unlock()

	p.closed = true
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
