package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeBadgeRepo struct {
	articles int
	answers  int
	awarded  map[string]bool
	countErr error
}

func newFakeBadgeRepo() *fakeBadgeRepo {
	return &fakeBadgeRepo{awarded: make(map[string]bool)}
}

func (r *fakeBadgeRepo) Award(ctx context.Context, memberID, slug, name string, now time.Time) (bool, error) {
	key := memberID + "/" + slug
	if r.awarded[key] {
		return false, nil
	}
	r.awarded[key] = true
	return true, nil
}

func (r *fakeBadgeRepo) ListByMember(ctx context.Context, memberID string) ([]Badge, error) {
	return nil, nil
}

func (r *fakeBadgeRepo) CountArticlesByAuthor(ctx context.Context, memberID string) (int, error) {
	return r.articles, r.countErr
}

func (r *fakeBadgeRepo) CountQuestionsByAuthor(ctx context.Context, memberID string) (int, error) {
	return 0, r.countErr
}

func (r *fakeBadgeRepo) CountAnswersByAuthor(ctx context.Context, memberID string) (int, error) {
	return r.answers, r.countErr
}

func (r *fakeBadgeRepo) CountReportsByReporter(ctx context.Context, memberID string) (int, error) {
	return 0, r.countErr
}

func TestBadgeProcessorAwardsAtThreshold(t *testing.T) {
	repo := newFakeBadgeRepo()
	repo.articles = 1
	proc := NewBadgeProcessor(repo)

	payload, err := EncodeBadgeEvent(BadgeEvent{Kind: "article_created", MemberID: "member-1", At: time.Now()})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := proc.Process(context.Background(), payload); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !repo.awarded["member-1/first-article"] {
		t.Fatalf("first-article not awarded")
	}
	if repo.awarded["member-1/prolific-author"] {
		t.Fatalf("prolific-author awarded below threshold")
	}

	repo.articles = 10
	if err := proc.Process(context.Background(), payload); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !repo.awarded["member-1/prolific-author"] {
		t.Fatalf("prolific-author not awarded at threshold")
	}
}

func TestBadgeProcessorDropsBadEvents(t *testing.T) {
	proc := NewBadgeProcessor(newFakeBadgeRepo())
	ctx := context.Background()

	// malformed and unknown events must not be retried
	if err := proc.Process(ctx, "{not json"); err != nil {
		t.Fatalf("malformed payload should be dropped, got %v", err)
	}
	payload, _ := EncodeBadgeEvent(BadgeEvent{Kind: "unknown_kind", MemberID: "member-1"})
	if err := proc.Process(ctx, payload); err != nil {
		t.Fatalf("unknown kind should be dropped, got %v", err)
	}
	payload, _ = EncodeBadgeEvent(BadgeEvent{Kind: "article_created"})
	if err := proc.Process(ctx, payload); err != nil {
		t.Fatalf("missing member id should be dropped, got %v", err)
	}
}

func TestBadgeProcessorReturnsErrorForRetry(t *testing.T) {
	repo := newFakeBadgeRepo()
	repo.countErr = errors.New("db down")
	proc := NewBadgeProcessor(repo)

	payload, _ := EncodeBadgeEvent(BadgeEvent{Kind: "answer_created", MemberID: "member-1"})
	if err := proc.Process(context.Background(), payload); err == nil {
		t.Fatalf("transient count failure should surface for retry")
	}
}
