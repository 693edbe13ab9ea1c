package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Strategy 退避策略
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"       // 固定间隔
	StrategyExponential Strategy = "exponential" // 指数退避
)

// Config 重试配置
type Config struct {
	Name            string        // 操作名，用于日志
	MaxAttempts     int           // 最大尝试次数
	InitialInterval time.Duration // 初始间隔
	MaxInterval     time.Duration // 最大间隔
	Strategy        Strategy
	Logger          *logrus.Logger
}

// ConnectConfig 数据库 / 消息队列连接使用的配置
func ConnectConfig(name string, logger *logrus.Logger) *Config {
	return &Config{
		Name:            name,
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Strategy:        StrategyExponential,
		Logger:          logger,
	}
}

// permanentError 不再重试的错误
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记错误为不可重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var perm *permanentError
	switch {
	case errors.As(err, &perm):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// Do 执行带重试的操作
func Do(ctx context.Context, cfg *Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var lastErr error
	interval := cfg.InitialInterval

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s canceled: %w", cfg.Name, err)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.WithFields(logrus.Fields{
					"operation": cfg.Name,
					"attempt":   attempt,
				}).Info("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		logger.WithFields(logrus.Fields{
			"operation": cfg.Name,
			"attempt":   attempt,
			"max":       cfg.MaxAttempts,
			"wait":      interval,
		}).WithError(err).Warn("Operation failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during wait: %w", cfg.Name, ctx.Err())
		case <-time.After(interval):
		}

		interval = nextInterval(cfg, interval)
	}

	return fmt.Errorf("%s: max attempts (%d) reached: %w", cfg.Name, cfg.MaxAttempts, lastErr)
}

// DoWithResult 执行带重试的操作（返回结果）
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		res, err := fn(ctx)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

// nextInterval 计算下一次等待时间
func nextInterval(cfg *Config, current time.Duration) time.Duration {
	next := current
	if cfg.Strategy == StrategyExponential {
		next = current * 2
	}
	if cfg.MaxInterval > 0 && next > cfg.MaxInterval {
		next = cfg.MaxInterval
	}
	return next
}
