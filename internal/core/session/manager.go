// Package session 管理每個瀏覽器會話的表單控制器生命週期。
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"image-compressor/internal/core/blob"
	"image-compressor/internal/core/compressor"
	"image-compressor/internal/core/form"
	imgsvc "image-compressor/internal/core/image"
	"image-compressor/internal/infrastructure/config"
	"image-compressor/internal/pkg/common"

	"go.uber.org/zap"
)

// ErrClosed 管理器已關閉
var ErrClosed = errors.New("session manager is closed")

// Session 一個掛載中的表單
type Session struct {
	ID         string
	Controller *form.Controller
	Alerts     *form.Alerts
	CreatedAt  time.Time

	lastAccess time.Time
}

// Stats 會話統計
type Stats struct {
	Active    int   `json:"active"`
	Mounted   int64 `json:"mounted"`
	Expired   int64 `json:"expired"`
	Evicted   int64 `json:"evicted"`
	Unmounted int64 `json:"unmounted"`
}

// Manager 會話管理器
type Manager struct {
	config     config.SessionConfig
	formOpts   form.Options
	store      blob.Store
	compressor compressor.Compressor
	inspector  *imgsvc.Service

	mu       sync.Mutex
	sessions map[string]*Session
	stats    Stats
	closed   bool
	done     chan struct{}
	once     sync.Once
	now      func() time.Time
}

// NewManager 創建會話管理器並啟動過期清理
func NewManager(cfg config.SessionConfig, formOpts form.Options, store blob.Store, comp compressor.Compressor, inspector *imgsvc.Service) *Manager {
	m := &Manager{
		config:     cfg,
		formOpts:   formOpts,
		store:      store,
		compressor: comp,
		inspector:  inspector,
		sessions:   make(map[string]*Session),
		done:       make(chan struct{}),
		now:        time.Now,
	}

	if cfg.CleanupInterval > 0 && cfg.TTL > 0 {
		go m.startCleanup()
	}

	common.LogInfo("會話管理器已初始化",
		zap.Duration("ttl", cfg.TTL),
		zap.Int("max_sessions", cfg.MaxSessions),
	)

	return m
}

// Mount 建立新會話與控制器
func (m *Manager) Mount() (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	var evicted *Session
	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		evicted = m.evictLRU()
	}

	alerts := form.NewAlerts(10)
	now := m.now()
	s := &Session{
		ID:         common.GenerateUUID(),
		Controller: form.NewController(m.formOpts, m.store, m.compressor, m.inspector, alerts),
		Alerts:     alerts,
		CreatedAt:  now,
		lastAccess: now,
	}
	m.sessions[s.ID] = s
	m.stats.Mounted++
	m.mu.Unlock()

	if evicted != nil {
		evicted.Controller.Close()
	}

	common.LogDebug("Session mounted", zap.String("session_id", s.ID))
	return s, nil
}

// Get 取得會話並更新存取時間
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, common.ErrSessionNotFound
	}

	if m.expired(s) {
		delete(m.sessions, id)
		m.stats.Expired++
		m.mu.Unlock()
		s.Controller.Close()
		return nil, common.ErrSessionNotFound
	}

	s.lastAccess = m.now()
	m.mu.Unlock()

	// 參照與會話一同續期
	if err := s.Controller.Touch(context.Background()); err != nil {
		common.LogWarn("Failed to refresh session blobs", zap.String("session_id", id), zap.Error(err))
	}
	return s, nil
}

// Unmount 卸載會話並撤銷其所有參照
func (m *Manager) Unmount(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		m.stats.Unmounted++
	}
	m.mu.Unlock()

	if !ok {
		return common.ErrSessionNotFound
	}

	s.Controller.Close()
	common.LogDebug("Session unmounted", zap.String("session_id", id))
	return nil
}

func (m *Manager) expired(s *Session) bool {
	return m.config.TTL > 0 && m.now().Sub(s.lastAccess) > m.config.TTL
}

// evictLRU 移除最久未存取的會話，呼叫時須持有鎖
func (m *Manager) evictLRU() *Session {
	var oldest *Session
	for _, s := range m.sessions {
		if oldest == nil || s.lastAccess.Before(oldest.lastAccess) {
			oldest = s
		}
	}
	if oldest == nil {
		return nil
	}

	delete(m.sessions, oldest.ID)
	m.stats.Evicted++
	common.LogInfo("會話已淘汰(LRU)", zap.String("session_id", oldest.ID))
	return oldest
}

// startCleanup 定期清理過期會話
func (m *Manager) startCleanup() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.cleanup(); n > 0 {
				common.LogInfo("清理過期會話", zap.Int("count", n))
			}
		case <-m.done:
			return
		}
	}
}

// cleanup 移除過期會話並回傳數量
func (m *Manager) cleanup() int {
	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.stats.Expired += int64(len(expired))
	m.mu.Unlock()

	for _, s := range expired {
		s.Controller.Close()
	}
	return len(expired)
}

// Stats 取得統計資料
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stats
	st.Active = len(m.sessions)
	return st
}

// Close 卸載所有會話
func (m *Manager) Close() {
	m.once.Do(func() {
		close(m.done)

		m.mu.Lock()
		m.closed = true
		sessions := m.sessions
		m.sessions = make(map[string]*Session)
		m.mu.Unlock()

		for _, s := range sessions {
			s.Controller.Close()
		}

		common.LogInfo("會話管理器已關閉", zap.Int("unmounted", len(sessions)))
	})
}
