package queue

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/apk-analysis/droidcarve-go/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, body []byte) error {
	args := m.Called(ctx, body)
	return args.Error(0)
}

// fakeAcknowledger 记录 ack / nack
type fakeAcknowledger struct {
	acked  int
	nacked int
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked++
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.nacked++
	return nil
}

func TestDialURL(t *testing.T) {
	cfg := &config.RabbitMQConfig{Host: "mq", Port: 5672, User: "guest", Password: "p@ss", VHost: ""}
	assert.Equal(t, "amqp://guest:p%40ss@mq:5672/", DialURL(cfg))
}

func TestTaskMessage_Decode(t *testing.T) {
	msg, err := DecodeTaskMessage([]byte(`{"task_id":"t1","apk_name":"app.apk","apk_path":"/inbox/app.apk"}`))
	require.NoError(t, err)
	assert.Equal(t, &TaskMessage{TaskID: "t1", APKName: "app.apk", APKPath: "/inbox/app.apk"}, msg)

	_, err = DecodeTaskMessage([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeTaskMessage([]byte(`{"apk_name":"app.apk"}`))
	assert.Error(t, err)
}

func TestProducer_PublishTask(t *testing.T) {
	pub := new(MockPublisher)
	msg := &TaskMessage{TaskID: "t1", APKName: "app.apk", APKPath: "/inbox/app.apk"}
	body, err := msg.Encode()
	require.NoError(t, err)

	pub.On("Publish", mock.Anything, body).Return(nil).Once()
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("channel closed")).Once()

	p := NewProducer(pub, newTestLogger())
	require.NoError(t, p.PublishTask(context.Background(), msg))
	assert.Error(t, p.PublishTask(context.Background(), msg))
	pub.AssertExpectations(t)
}

func TestConsumer_ProcessMessage(t *testing.T) {
	var handled []string
	handler := func(ctx context.Context, msg *TaskMessage) error {
		handled = append(handled, msg.TaskID)
		if msg.TaskID == "bad" {
			return errors.New("analysis failed")
		}
		return nil
	}
	c := NewConsumer(nil, handler, 1, newTestLogger())

	tests := []struct {
		name   string
		body   string
		acked  int
		nacked int
	}{
		{"success", `{"task_id":"ok","apk_path":"/a.apk"}`, 1, 0},
		{"handler error", `{"task_id":"bad","apk_path":"/b.apk"}`, 0, 1},
		{"malformed", `{`, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			c.processMessage(context.Background(), 0, amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(tt.body)})
			assert.Equal(t, tt.acked, ack.acked)
			assert.Equal(t, tt.nacked, ack.nacked)
		})
	}
	assert.Equal(t, []string{"ok", "bad"}, handled)
}
