package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func queueTestSetup(t *testing.T) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisQueue(client)
}

func TestQueueReserveAndAck(t *testing.T) {
	q := queueTestSetup(t)
	ctx := context.Background()
	const pending = "test_pending"
	const processing = "test_processing"

	payload, err := EncodeBadgeEvent(BadgeEvent{Kind: "article_created", MemberID: "member-1", At: time.Now()})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := q.Enqueue(ctx, pending, payload); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	got, err := q.Reserve(ctx, pending, processing, time.Minute)
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if got != payload {
		t.Fatalf("reserved %q, want %q", got, payload)
	}

	// queue drained: further reserves report empty
	if _, err := q.Reserve(ctx, pending, processing, time.Minute); !errors.Is(err, redis.Nil) {
		t.Fatalf("empty reserve: got %v, want redis.Nil", err)
	}

	if err := q.Ack(ctx, processing, got); err != nil {
		t.Fatalf("Ack error: %v", err)
	}
	moved, err := q.RequeueExpired(ctx, processing, pending, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("RequeueExpired error: %v", err)
	}
	if len(moved) != 0 {
		t.Fatalf("acked event was requeued: %v", moved)
	}
}

func TestQueueRequeueExpiredRestoresUnacked(t *testing.T) {
	q := queueTestSetup(t)
	ctx := context.Background()
	const pending = "test_pending"
	const processing = "test_processing"

	if err := q.Enqueue(ctx, pending, "event-1"); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if _, err := q.Reserve(ctx, pending, processing, time.Second); err != nil {
		t.Fatalf("Reserve error: %v", err)
	}

	// before the visibility deadline nothing moves
	moved, err := q.RequeueExpired(ctx, processing, pending, time.Now())
	if err != nil {
		t.Fatalf("RequeueExpired error: %v", err)
	}
	if len(moved) != 0 {
		t.Fatalf("in-flight event requeued early: %v", moved)
	}

	// past the deadline the event returns to pending
	moved, err = q.RequeueExpired(ctx, processing, pending, time.Now().Add(2*time.Second))
	if err != nil {
		t.Fatalf("RequeueExpired error: %v", err)
	}
	if len(moved) != 1 || moved[0] != "event-1" {
		t.Fatalf("moved = %v, want [event-1]", moved)
	}

	got, err := q.Reserve(ctx, pending, processing, time.Minute)
	if err != nil || got != "event-1" {
		t.Fatalf("re-reserve: got %q err %v", got, err)
	}
}
