package queue

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/apk-analysis/droidcarve-go/internal/config"
	"github.com/apk-analysis/droidcarve-go/internal/retry"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected 通道尚未建立或已关闭
var ErrNotConnected = errors.New("rabbitmq channel is not open")

// RabbitMQ RabbitMQ 客户端
type RabbitMQ struct {
	cfg           *config.RabbitMQConfig
	conn          *amqp.Connection
	channel       *amqp.Channel
	logger        *logrus.Logger
	heartbeat     time.Duration
	prefetchCount int // 与 worker 数量一致
	reconnect     chan struct{}

	mu            sync.RWMutex
	closed        bool
	connNotify    chan *amqp.Error
	channelNotify chan *amqp.Error
}

// DialURL 构造 amqp 连接地址
func DialURL(cfg *config.RabbitMQConfig) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.VHost,
	}
	return u.String()
}

// NewRabbitMQ 连接 RabbitMQ 并声明持久化队列，连接失败时按退避重试
func NewRabbitMQ(ctx context.Context, cfg *config.RabbitMQConfig, prefetchCount int, logger *logrus.Logger) (*RabbitMQ, error) {
	if prefetchCount <= 0 {
		prefetchCount = 1
	}

	mq := &RabbitMQ{
		cfg:           cfg,
		logger:        logger,
		heartbeat:     10 * time.Second,
		prefetchCount: prefetchCount,
		reconnect:     make(chan struct{}, 1),
	}

	if err := retry.Do(ctx, retry.ConnectConfig("rabbitmq connect", logger), func(ctx context.Context) error {
		return mq.connect()
	}); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return mq, nil
}

// connect 建立连接、通道并声明队列
func (mq *RabbitMQ) connect() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	conn, err := amqp.DialConfig(DialURL(mq.cfg), amqp.Config{
		Heartbeat: mq.heartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(mq.prefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if _, err := ch.QueueDeclare(
		mq.cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	mq.conn = conn
	mq.channel = ch
	mq.connNotify = conn.NotifyClose(make(chan *amqp.Error, 1))
	mq.channelNotify = ch.NotifyClose(make(chan *amqp.Error, 1))

	mq.logger.WithFields(logrus.Fields{
		"host":           mq.cfg.Host,
		"port":           mq.cfg.Port,
		"queue":          mq.cfg.Queue,
		"prefetch_count": mq.prefetchCount,
	}).Info("Connected to RabbitMQ")

	return nil
}

// WatchConnection 监听连接或通道关闭并发出重连信号，Close 后退出
func (mq *RabbitMQ) WatchConnection() {
	go func() {
		for {
			mq.mu.RLock()
			if mq.closed {
				mq.mu.RUnlock()
				return
			}
			connNotify, channelNotify := mq.connNotify, mq.channelNotify
			mq.mu.RUnlock()

			var amqpErr *amqp.Error
			select {
			case amqpErr = <-connNotify:
			case amqpErr = <-channelNotify:
			}

			if mq.isClosed() {
				return
			}
			if amqpErr != nil {
				mq.logger.WithError(amqpErr).Error("RabbitMQ connection lost")
			} else {
				mq.logger.Warn("RabbitMQ connection lost")
			}

			select {
			case mq.reconnect <- struct{}{}:
			default:
			}

			// 等待重连完成后再监听新的通知通道
			for {
				mq.mu.RLock()
				refreshed := mq.connNotify != connNotify || mq.closed
				mq.mu.RUnlock()
				if refreshed {
					break
				}
				time.Sleep(100 * time.Millisecond)
			}
		}
	}()
}

// Reconnect 关闭旧连接后重新连接
func (mq *RabbitMQ) Reconnect(ctx context.Context) error {
	mq.closeConnections()

	if err := retry.Do(ctx, retry.ConnectConfig("rabbitmq reconnect", mq.logger), func(ctx context.Context) error {
		return mq.connect()
	}); err != nil {
		return err
	}

	mq.logger.Info("Successfully reconnected to RabbitMQ")
	return nil
}

// ReconnectSignals 连接丢失信号
func (mq *RabbitMQ) ReconnectSignals() <-chan struct{} {
	return mq.reconnect
}

func (mq *RabbitMQ) closeConnections() {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.channel != nil {
		mq.channel.Close()
		mq.channel = nil
	}
	if mq.conn != nil {
		mq.conn.Close()
		mq.conn = nil
	}
}

func (mq *RabbitMQ) currentChannel() (*amqp.Channel, error) {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	if mq.channel == nil || mq.channel.IsClosed() {
		return nil, ErrNotConnected
	}
	return mq.channel, nil
}

func (mq *RabbitMQ) isClosed() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.closed
}

// Publish 发布持久化 JSON 消息
func (mq *RabbitMQ) Publish(ctx context.Context, body []byte) error {
	ch, err := mq.currentChannel()
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",           // exchange
		mq.cfg.Queue, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// Consume 手动确认模式消费
func (mq *RabbitMQ) Consume() (<-chan amqp.Delivery, error) {
	ch, err := mq.currentChannel()
	if err != nil {
		return nil, err
	}

	msgs, err := ch.Consume(
		mq.cfg.Queue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}
	return msgs, nil
}

// QueueStats 队列中的消息数与消费者数
func (mq *RabbitMQ) QueueStats() (messages, consumers int, err error) {
	ch, err := mq.currentChannel()
	if err != nil {
		return 0, 0, err
	}

	q, err := ch.QueueInspect(mq.cfg.Queue)
	if err != nil {
		return 0, 0, err
	}
	return q.Messages, q.Consumers, nil
}

// Close 关闭连接
func (mq *RabbitMQ) Close() error {
	mq.mu.Lock()
	mq.closed = true
	mq.mu.Unlock()

	mq.closeConnections()
	mq.logger.Info("RabbitMQ connection closed")
	return nil
}
