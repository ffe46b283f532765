package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/notify"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// Worker turns queue events into notifications and purges stale codes.
func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		log.Fatalf("worker needs a shared queue, QUEUE_BACKEND=memory is only served in-process by the api")
	}

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable yet, consumer will keep retrying", cfg.RedisAddr)
	}
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)

	att := attendance.NewService(attendance.NewRepository(db.Client), attendance.Options{})
	notes := notify.NewService(notify.NewRepository(db.Client), nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := notify.Run(ctx, q, notes); err != nil {
			log.Printf("notification consumer failed: %v", err)
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		purgeLoop(ctx, att, cfg.PurgeInterval, cfg.CodeRetention)
	}()

	log.Println("worker started, waiting for messages...")
	wg.Wait()
	log.Println("worker stopped")
}

func purgeLoop(ctx context.Context, att *attendance.Service, every, retention time.Duration) {
	if every <= 0 {
		log.Println("code purge disabled")
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := att.PurgeExpired(ctx, retention)
			if err != nil {
				log.Printf("purge expired codes: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("purged %d expired codes", n)
			}
		}
	}
}
