package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// TaskMessage 任务消息
type TaskMessage struct {
	TaskID  string `json:"task_id"`
	APKName string `json:"apk_name"`
	APKPath string `json:"apk_path"`
}

// Encode 序列化消息
func (m *TaskMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeTaskMessage 反序列化并校验消息
func DecodeTaskMessage(body []byte) (*TaskMessage, error) {
	var msg TaskMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if msg.TaskID == "" || msg.APKPath == "" {
		return nil, errors.New("message missing task_id or apk_path")
	}
	return &msg, nil
}

// Publisher 发布原始消息
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Producer 消息生产者
type Producer struct {
	pub    Publisher
	logger *logrus.Logger
}

// NewProducer 创建生产者
func NewProducer(pub Publisher, logger *logrus.Logger) *Producer {
	return &Producer{
		pub:    pub,
		logger: logger,
	}
}

// PublishTask 发布任务消息
func (p *Producer) PublishTask(ctx context.Context, msg *TaskMessage) error {
	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := p.pub.Publish(ctx, body); err != nil {
		p.logger.WithError(err).WithField("task_id", msg.TaskID).Error("Failed to publish task")
		return fmt.Errorf("failed to publish: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"task_id":  msg.TaskID,
		"apk_name": msg.APKName,
	}).Info("Task published to queue")

	return nil
}
