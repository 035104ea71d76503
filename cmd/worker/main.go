package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"os/user"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"quillboard-api/core"
)

func main() {
	cfg := core.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := core.SetupLogging(cfg, "worker.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	queue := core.NewRedisQueue(redisClient)
	badgeRepo := core.NewPgBadgeRepository(db)
	processor := core.NewBadgeProcessor(badgeRepo)
	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	workerID := core.NewWorkerID()
	hostname, _ := os.Hostname()
	currentUser, _ := user.Current()
	username := "unknown"
	if currentUser != nil && currentUser.Username != "" {
		username = currentUser.Username
	}
	log.Printf("badge worker started. id=%s concurrency=%d queue=%s user=%s", workerID, concurrency, core.PendingBadgeQueueKey, username)

	const pendingKey = core.PendingBadgeQueueKey
	const processingKey = core.ProcessingBadgeQueueKey
	visibility := core.DefaultVisibilityTimeout
	reclaimInterval := 15 * time.Second
	const maxAttempts = 3

	state := core.NewHeartbeatState(workerID, hostname, concurrency)
	go state.Start(ctx, redisClient)

	// requeue expired in-flight events periodically
	go func() {
		ticker := time.NewTicker(reclaimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if events, err := queue.RequeueExpired(ctx, processingKey, pendingKey, time.Now()); err != nil {
					log.Printf("[reclaimer] requeue expired error: %v", err)
				} else if len(events) > 0 {
					log.Printf("[reclaimer] requeued %d expired events", len(events))
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			for {
				payload, err := queue.Reserve(ctx, pendingKey, processingKey, visibility)
				if err != nil {
					if errors.Is(err, redis.Nil) {
						// Queue is empty, wait before retrying to avoid CPU spinning
						select {
						case <-ctx.Done():
							return
						case <-time.After(100 * time.Millisecond):
							continue
						}
					}
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					log.Printf("[worker %d] dequeue error: %v", workerNum, err)
					time.Sleep(time.Second)
					continue
				}

				state.JobStarted(payload)

				procErr := processor.Process(ctx, payload)
				if procErr != nil {
					var ev core.BadgeEvent
					if json.Unmarshal([]byte(payload), &ev) == nil && ev.Attempts < maxAttempts {
						ev.Attempts++
						if retry, encErr := core.EncodeBadgeEvent(ev); encErr == nil {
							if err := queue.Enqueue(ctx, pendingKey, retry); err != nil {
								log.Printf("[worker %d] re-enqueue event failed: %v", workerNum, err)
							} else {
								log.Printf("[worker %d] event retried (attempts=%d): %v", workerNum, ev.Attempts, procErr)
							}
						}
					} else {
						log.Printf("[worker %d] dropping event after %d attempts: %v", workerNum, maxAttempts, procErr)
					}
				}

				if err := queue.Ack(ctx, processingKey, payload); err != nil {
					log.Printf("[worker %d] ack failed: %v", workerNum, err)
				}
				state.JobFinished(payload, procErr)
			}
		}(i + 1)
	}

	wg.Wait()
}
