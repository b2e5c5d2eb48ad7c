package services

import (
	"context"
	"sync"
	"time"

	"team-presence/database"
	"team-presence/pkg/common"
)

// WindowCloser 关闭过期出勤窗口
type WindowCloser interface {
	CloseExpiredWindows(ctx context.Context) ([]database.Match, error)
}

// WindowSweeper 定期关闭已开赛比赛的出勤窗口
type WindowSweeper struct {
	matches  WindowCloser
	events   EventPublisher
	interval time.Duration
	logger   common.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// NewWindowSweeper 创建窗口清理器
func NewWindowSweeper(matches WindowCloser, events EventPublisher, interval time.Duration, logger common.Logger) *WindowSweeper {
	if events == nil {
		events = NopPublisher{}
	}
	return &WindowSweeper{
		matches:  matches,
		events:   events,
		interval: interval,
		logger:   logger,
	}
}

// Start 立即执行一次, 之后按间隔执行
func (s *WindowSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopChan != nil {
		s.logger.Warn("Already running")
		return
	}
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.logger.Info("Started with interval: %v", s.interval)

	go s.loop(s.stopChan, s.done)
}

func (s *WindowSweeper) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunOnce(context.Background())
		select {
		case <-ticker.C:
		case <-stop:
			return
		}
	}
}

// RunOnce 执行一轮清理, 返回关闭的窗口数
func (s *WindowSweeper) RunOnce(ctx context.Context) int {
	closed, err := s.matches.CloseExpiredWindows(ctx)
	if err != nil {
		s.logger.Error("Closing expired presence windows failed: %v", err)
		return 0
	}
	for i := range closed {
		m := &closed[i]
		Notify(ctx, s.events, s.logger, NewEvent(EventPresenceWindow, m.ID, m))
	}
	if len(closed) > 0 {
		s.logger.Info("Closed %d expired presence window(s)", len(closed))
	}
	return len(closed)
}

// Stop 停止并等待当前一轮结束
func (s *WindowSweeper) Stop() {
	s.mu.Lock()
	stop, done := s.stopChan, s.done
	s.stopChan, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	s.logger.Info("Stopped")
}
