package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"image-compressor/internal/core/blob"
	"image-compressor/internal/infrastructure/config"
	"image-compressor/internal/pkg/common"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull 隊列已滿
	ErrQueueFull = errors.New("queue is full")
	// ErrClosed 隊列已關閉
	ErrClosed = errors.New("queue manager is closed")
)

// Job 在工作協程上執行的壓縮工作
type Job func(ctx context.Context) (blob.Blob, error)

// Request 隊列請求
type Request struct {
	Context context.Context
	Job     Job
	Result  chan Result
}

// Result 處理結果
type Result struct {
	Blob  blob.Blob
	Error error
}

// Status 隊列狀態
type Status struct {
	QueueLength    int   `json:"queue_length"`
	ProcessedCount int64 `json:"processed_count"`
	FailedCount    int64 `json:"failed_count"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
}

// Manager 隊列管理器
type Manager struct {
	config    config.QueueConfig
	queue     chan *Request
	done      chan struct{}
	workers   conc.WaitGroup
	processed atomic.Int64
	failed    atomic.Int64
	closeOnce sync.Once
}

// NewManager 創建隊列管理器並啟動工作協程
func NewManager(cfg config.QueueConfig) *Manager {
	m := &Manager{
		config: cfg,
		queue:  make(chan *Request, cfg.MaxSize),
		done:   make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		id := i
		m.workers.Go(func() { m.worker(id) })
	}

	common.LogInfo("壓縮隊列已啟動",
		zap.Int("workers", cfg.Workers),
		zap.Int("max_queue_size", cfg.MaxSize),
	)

	return m
}

// Submit 將工作加入隊列並等待結果
func (m *Manager) Submit(ctx context.Context, job Job) (blob.Blob, error) {
	resultCh, err := m.Enqueue(ctx, job)
	if err != nil {
		return blob.Blob{}, err
	}

	select {
	case res := <-resultCh:
		return res.Blob, res.Error
	case <-ctx.Done():
		return blob.Blob{}, ctx.Err()
	case <-m.done:
		return blob.Blob{}, ErrClosed
	}
}

// Enqueue 將工作加入隊列，隊列已滿時立即失敗
func (m *Manager) Enqueue(ctx context.Context, job Job) (<-chan Result, error) {
	select {
	case <-m.done:
		return nil, ErrClosed
	default:
	}

	req := &Request{
		Context: ctx,
		Job:     job,
		Result:  make(chan Result, 1),
	}

	select {
	case m.queue <- req:
		common.LogDebug("Request enqueued",
			zap.Int("queue_length", len(m.queue)),
			zap.Int("max_queue_size", m.config.MaxSize),
		)
		return req.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, ErrClosed
	default:
		return nil, fmt.Errorf("%w (max %d)", ErrQueueFull, m.config.MaxSize)
	}
}

// worker 處理隊列中的工作
func (m *Manager) worker(id int) {
	for {
		select {
		case <-m.done:
			return
		case req := <-m.queue:
			m.process(id, req)
		}
	}
}

// process 執行單一工作，panic 轉為錯誤回傳
func (m *Manager) process(id int, req *Request) {
	if err := req.Context.Err(); err != nil {
		req.Result <- Result{Error: err}
		m.failed.Add(1)
		return
	}

	var res Result
	var pc panics.Catcher
	pc.Try(func() {
		res.Blob, res.Error = req.Job(req.Context)
	})
	if r := pc.Recovered(); r != nil {
		common.LogError("Compression job panicked",
			zap.Int("worker", id),
			zap.String("panic", fmt.Sprint(r.Value)),
		)
		res = Result{Error: r.AsError()}
	}

	if res.Error != nil {
		m.failed.Add(1)
	}
	m.processed.Add(1)
	req.Result <- res
}

// Status 獲取隊列狀態
func (m *Manager) Status() *Status {
	return &Status{
		QueueLength:    len(m.queue),
		ProcessedCount: m.processed.Load(),
		FailedCount:    m.failed.Load(),
		MaxQueueSize:   m.config.MaxSize,
		Workers:        m.config.Workers,
	}
}

// Close 關閉隊列並等待工作協程結束，尚未處理的請求以 ErrClosed 回覆
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.workers.Wait()

		for {
			select {
			case req := <-m.queue:
				req.Result <- Result{Error: ErrClosed}
			default:
				return
			}
		}
	})
}
