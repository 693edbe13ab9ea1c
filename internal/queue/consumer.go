package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// TaskHandler 任务处理函数
type TaskHandler func(ctx context.Context, msg *TaskMessage) error

// Consumer 消息消费者
type Consumer struct {
	mq            *RabbitMQ
	logger        *logrus.Logger
	handler       TaskHandler
	workers       int
	workerWg      sync.WaitGroup
	activeWorkers atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConsumer 创建消费者
func NewConsumer(mq *RabbitMQ, handler TaskHandler, workers int, logger *logrus.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		mq:      mq,
		logger:  logger,
		handler: handler,
		workers: workers,
	}
}

// Run 开始消费并阻塞到 ctx 结束，连接丢失时自动重连
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.start(ctx); err != nil {
		return err
	}
	c.mq.WatchConnection()

	for {
		select {
		case <-ctx.Done():
			c.stopWorkers()
			c.logger.Info("Consumer stopped")
			return nil

		case <-c.mq.ReconnectSignals():
			c.logger.Warn("Connection lost, attempting to reconnect")
			c.stopWorkers()

			if err := c.mq.Reconnect(ctx); err != nil {
				return fmt.Errorf("failed to reconnect: %w", err)
			}
			if err := c.start(ctx); err != nil {
				return fmt.Errorf("failed to restart consumer: %w", err)
			}
		}
	}
}

// start 启动 worker 协程
func (c *Consumer) start(ctx context.Context) error {
	msgs, err := c.mq.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	for i := 0; i < c.workers; i++ {
		c.workerWg.Add(1)
		go c.worker(workerCtx, i, msgs)
	}

	c.logger.WithField("workers", c.workers).Info("Consumer started")
	return nil
}

// worker 工作协程
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.workerWg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.WithField("worker_id", id).Warn("Message channel closed")
				return
			}
			c.activeWorkers.Add(1)
			c.processMessage(ctx, id, msg)
			c.activeWorkers.Add(-1)
		}
	}
}

// processMessage 处理单条消息；失败的任务不重新入队
func (c *Consumer) processMessage(ctx context.Context, workerID int, delivery amqp.Delivery) {
	startTime := time.Now()

	msg, err := DecodeTaskMessage(delivery.Body)
	if err != nil {
		c.logger.WithError(err).Error("Dropping malformed message")
		delivery.Nack(false, false)
		return
	}

	fields := logrus.Fields{
		"worker_id": workerID,
		"task_id":   msg.TaskID,
		"apk_name":  msg.APKName,
	}
	c.logger.WithFields(fields).Info("Processing task")

	if err := c.handler(ctx, msg); err != nil {
		c.logger.WithError(err).WithFields(fields).Error("Task processing failed")
		delivery.Nack(false, false)
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.WithError(err).Error("Failed to acknowledge message")
	}

	fields["duration"] = time.Since(startTime).Seconds()
	c.logger.WithFields(fields).Info("Task completed successfully")
}

// stopWorkers 取消 worker 并等待当前任务结束（最多 30 秒）
func (c *Consumer) stopWorkers() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		c.logger.Warn("Timeout waiting for workers to stop")
	}
}

// ActiveWorkers 正在处理消息的 worker 数
func (c *Consumer) ActiveWorkers() int {
	return int(c.activeWorkers.Load())
}
