package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/apk-analysis/droidcarve-go/internal/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrQueueFull 任务队列已满
var ErrQueueFull = errors.New("task queue is full")

// Task 单个 APK 分析任务
type Task struct {
	ID       string
	APKPath  string
	resultCh chan error // 用于同步等待任务完成
}

// NewTask 生成带 UUID 的任务
func NewTask(apkPath string) *Task {
	return &Task{
		ID:      uuid.New().String(),
		APKPath: apkPath,
	}
}

// APKName 文件名
func (t *Task) APKName() string {
	return filepath.Base(t.APKPath)
}

// AnalyzeFunc 执行一次分析
type AnalyzeFunc func(ctx context.Context, task *Task) error

// Pool Worker 池
type Pool struct {
	workers  int
	taskChan chan *Task
	analyze  AnalyzeFunc
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	active   atomic.Int32
	wg       sync.WaitGroup
}

// NewPool 创建 Worker 池，m 可以为 nil
func NewPool(workers, queueSize int, analyze AnalyzeFunc, m *metrics.Metrics, logger *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		workers:  workers,
		taskChan: make(chan *Task, queueSize),
		analyze:  analyze,
		metrics:  m,
		logger:   logger,
	}
}

// Start 启动 Worker 池
func (p *Pool) Start(ctx context.Context) {
	p.logger.WithField("workers", p.workers).Info("Starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.reportStats()
}

// worker Worker 协程
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.logger.WithField("worker_id", id).Debug("Worker shutting down")
			return

		case task, ok := <-p.taskChan:
			if !ok {
				return
			}
			p.run(ctx, id, task)
		}
	}
}

// run 执行任务并回传结果，panic 视为任务失败
func (p *Pool) run(ctx context.Context, id int, task *Task) {
	p.active.Add(1)
	p.reportStats()

	fields := logrus.Fields{
		"worker_id": id,
		"task_id":   task.ID,
		"apk":       task.APKName(),
	}
	p.logger.WithFields(fields).Info("Processing task")

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		err = p.analyze(ctx, task)
	}()

	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("Task execution failed")
	} else {
		p.logger.WithFields(fields).Info("Task completed successfully")
	}

	p.active.Add(-1)
	p.reportStats()

	if task.resultCh != nil {
		task.resultCh <- err
		close(task.resultCh)
	}
}

// Submit 提交任务（异步，不等待结果）
func (p *Pool) Submit(task *Task) error {
	select {
	case p.taskChan <- task:
		p.logger.WithField("task_id", task.ID).Debug("Task submitted to pool")
		p.reportStats()
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitAndWait 提交任务并等待完成
func (p *Pool) SubmitAndWait(ctx context.Context, task *Task) error {
	task.resultCh = make(chan error, 1)

	select {
	case p.taskChan <- task:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-task.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 关闭队列并等待已提交的任务执行完
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool")
	close(p.taskChan)
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// QueueSize 等待中的任务数
func (p *Pool) QueueSize() int {
	return len(p.taskChan)
}

// ActiveWorkers 正在执行任务的 worker 数
func (p *Pool) ActiveWorkers() int {
	return int(p.active.Load())
}

func (p *Pool) reportStats() {
	p.metrics.UpdateWorkerPoolStats(p.workers, p.ActiveWorkers(), p.QueueSize())
}
