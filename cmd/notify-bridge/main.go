package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/config"
	"github.com/asset-exchange/backend/internal/db"
	"github.com/asset-exchange/backend/internal/events"
)

// Notify Bridge is a small service that subscribes to exchange events in Redis
// and forwards them to an external webhook (bots, indexers, dashboards).

const forwardAttempts = 3

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.NotifyWebhookURL == "" {
		log.Fatal("NOTIFY_WEBHOOK_URL is required")
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil || rdb == nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log, cfg.NotifyEventTypes...)
	client := &http.Client{Timeout: 5 * time.Second}

	err = subscriber.Subscribe(ctx, events.StreamExchange, func(event events.Event) {
		log.Info("forwarding event", zap.String("type", event.Type))
		forward(ctx, client, cfg.NotifyWebhookURL, event, log)
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("notify-bridge started", zap.String("stream", events.StreamExchange), zap.Strings("types", cfg.NotifyEventTypes))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}

func forward(ctx context.Context, client *http.Client, url string, event events.Event, log *zap.Logger) {
	body, err := json.Marshal(event)
	if err != nil {
		log.Warn("failed to encode event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	for attempt := 1; attempt <= forwardAttempts; attempt++ {
		err = post(ctx, client, url, body)
		if err == nil {
			return
		}
		log.Warn("webhook delivery failed",
			zap.String("type", event.Type),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
}

func post(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
