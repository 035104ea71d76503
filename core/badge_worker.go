package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// BadgeEvent is the queue payload produced when a member creates content
// or files a report. Attempts counts delivery tries for retry bookkeeping.
type BadgeEvent struct {
	Kind     string    `json:"kind"` // article_created|question_created|answer_created|report_filed
	MemberID string    `json:"member_id"`
	Attempts int       `json:"attempts,omitempty"`
	At       time.Time `json:"at"`
}

// EncodeBadgeEvent serializes an event for the queue.
func EncodeBadgeEvent(ev BadgeEvent) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PublishBadgeEvent enqueues an event, logging instead of failing the
// request: badge awards are best-effort side effects of content creation.
func PublishBadgeEvent(ctx context.Context, queue EventQueue, kind, memberID string) {
	payload, err := EncodeBadgeEvent(BadgeEvent{Kind: kind, MemberID: memberID, At: time.Now()})
	if err != nil {
		log.Printf("failed to encode badge event kind=%s member=%s: %v", kind, memberID, err)
		return
	}
	if err := queue.Enqueue(ctx, PendingBadgeQueueKey, payload); err != nil {
		log.Printf("failed to enqueue badge event kind=%s member=%s: %v", kind, memberID, err)
	}
}

// badgeRule awards a badge once a member's counter reaches the threshold.
type badgeRule struct {
	Slug      string
	Name      string
	Threshold int
	Count     func(ctx context.Context, r BadgeRepository, memberID string) (int, error)
}

// rules per event kind. Awards are idempotent so re-delivered events are
// harmless.
var badgeRules = map[string][]badgeRule{
	"article_created": {
		{Slug: "first-article", Name: "First Article", Threshold: 1,
			Count: func(ctx context.Context, r BadgeRepository, id string) (int, error) { return r.CountArticlesByAuthor(ctx, id) }},
		{Slug: "prolific-author", Name: "Prolific Author", Threshold: 10,
			Count: func(ctx context.Context, r BadgeRepository, id string) (int, error) { return r.CountArticlesByAuthor(ctx, id) }},
	},
	"question_created": {
		{Slug: "curious-mind", Name: "Curious Mind", Threshold: 5,
			Count: func(ctx context.Context, r BadgeRepository, id string) (int, error) { return r.CountQuestionsByAuthor(ctx, id) }},
	},
	"answer_created": {
		{Slug: "first-answer", Name: "First Answer", Threshold: 1,
			Count: func(ctx context.Context, r BadgeRepository, id string) (int, error) { return r.CountAnswersByAuthor(ctx, id) }},
		{Slug: "helping-hand", Name: "Helping Hand", Threshold: 10,
			Count: func(ctx context.Context, r BadgeRepository, id string) (int, error) { return r.CountAnswersByAuthor(ctx, id) }},
	},
	"report_filed": {
		{Slug: "watchdog", Name: "Watchdog", Threshold: 1,
			Count: func(ctx context.Context, r BadgeRepository, id string) (int, error) { return r.CountReportsByReporter(ctx, id) }},
	},
}

// BadgeProcessor consumes badge events and applies award rules.
type BadgeProcessor struct {
	badges BadgeRepository
}

func NewBadgeProcessor(badges BadgeRepository) *BadgeProcessor {
	return &BadgeProcessor{badges: badges}
}

// Process handles one queue payload. A non-nil error means the event
// should be retried.
func (p *BadgeProcessor) Process(ctx context.Context, payload string) error {
	var ev BadgeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		// malformed payload will never succeed; drop it
		log.Printf("dropping malformed badge event: %v", err)
		return nil
	}
	rules, ok := badgeRules[ev.Kind]
	if !ok || ev.MemberID == "" {
		log.Printf("dropping badge event with unknown kind=%q member=%q", ev.Kind, ev.MemberID)
		return nil
	}

	now := time.Now()
	for _, rule := range rules {
		count, err := rule.Count(ctx, p.badges, ev.MemberID)
		if err != nil {
			return fmt.Errorf("count for rule %s: %w", rule.Slug, err)
		}
		if count < rule.Threshold {
			continue
		}
		awarded, err := p.badges.Award(ctx, ev.MemberID, rule.Slug, rule.Name, now)
		if err != nil {
			return fmt.Errorf("award %s: %w", rule.Slug, err)
		}
		if awarded {
			log.Printf("awarded badge %s to member %s", rule.Slug, ev.MemberID)
		}
	}
	return nil
}
