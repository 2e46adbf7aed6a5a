package form

import (
	"sync"
	"time"
)

// Kind 通知類型
type Kind string

const (
	KindPrecondition      Kind = "precondition"
	KindCompressionFailed Kind = "compression_failed"
	KindUploadRejected    Kind = "upload_rejected"
)

// Notification 需要提示使用者的訊息
type Notification struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier 接收使用者通知
type Notifier interface {
	Notify(n Notification)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}

// Alerts 暫存通知直到頁面取走，超過上限時丟棄最舊的
type Alerts struct {
	mu    sync.Mutex
	items []Notification
	limit int
}

// NewAlerts 創建通知暫存
func NewAlerts(limit int) *Alerts {
	if limit <= 0 {
		limit = 10
	}
	return &Alerts{limit: limit}
}

// Notify 實作 Notifier
func (a *Alerts) Notify(n Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.items = append(a.items, n)
	if over := len(a.items) - a.limit; over > 0 {
		a.items = a.items[over:]
	}
}

// Drain 取出並清空所有通知
func (a *Alerts) Drain() []Notification {
	a.mu.Lock()
	defer a.mu.Unlock()

	items := a.items
	a.items = nil
	return items
}

// Len 目前暫存數量
func (a *Alerts) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}
