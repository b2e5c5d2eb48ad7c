package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"team-presence/pkg/common"
)

// 事件类型
const (
	EventMatchCreated     = "match.created"
	EventMatchUpdated     = "match.updated"
	EventMatchDeleted     = "match.deleted"
	EventPresenceWindow   = "match.presence_window"
	EventPresencesUpdated = "presences.updated"
)

// Event 领域事件, 在事务提交后发布
type Event struct {
	Type       string      `json:"type"`
	MatchID    uuid.UUID   `json:"matchId"`
	Data       interface{} `json:"data,omitempty"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// NewEvent 创建事件
func NewEvent(eventType string, matchID uuid.UUID, data interface{}) Event {
	return Event{
		Type:       eventType,
		MatchID:    matchID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

// EventPublisher 事件发布器
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher 不做任何事的发布器
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (NopPublisher) Close() error                                   { return nil }

// MultiPublisher 依次发布到多个发布器, 收集所有错误
type MultiPublisher struct {
	publishers []EventPublisher
}

// NewMultiPublisher 创建组合发布器, 跳过 nil
func NewMultiPublisher(publishers ...EventPublisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

func (m *MultiPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const notifyTimeout = 5 * time.Second

// Notify 尽力发布事件, 失败只记录日志
func Notify(ctx context.Context, publisher EventPublisher, logger common.Logger, event Event) {
	if publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish %s for match %s: %v", event.Type, event.MatchID, err)
	}
}
