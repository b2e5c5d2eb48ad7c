package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"team-presence/pkg/common"
)

func TestAMQPPublishGivesUpWhileReconnecting(t *testing.T) {
	p := newAMQPPublisher("amqp://localhost", "team.events", common.NopLogger{})

	// 模拟重连期间锁被占用
	p.sem <- struct{}{}
	defer p.unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Publish(ctx, NewEvent(EventMatchUpdated, uuid.New(), nil))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Publish returned after %v", elapsed)
	}

	if err := p.Ping(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected Ping to give up, got %v", err)
	}
}

func TestAMQPPublishWithoutConnection(t *testing.T) {
	p := newAMQPPublisher("amqp://localhost", "team.events", common.NopLogger{})

	if err := p.Publish(context.Background(), NewEvent(EventMatchCreated, uuid.New(), nil)); err == nil {
		t.Fatal("Expected an error when not connected")
	}
	if err := p.Ping(context.Background()); err == nil {
		t.Error("Expected Ping to report the connection down")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
