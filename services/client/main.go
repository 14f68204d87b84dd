package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SueMuBai/nebula/internal/config"
	"github.com/SueMuBai/nebula/internal/logger"
	"github.com/SueMuBai/nebula/internal/session"
	"github.com/SueMuBai/nebula/internal/storage"
	"github.com/SueMuBai/nebula/internal/storage/memory"
	"github.com/SueMuBai/nebula/internal/storage/redis"
	"github.com/SueMuBai/nebula/internal/transport"
)

func main() {
	logger.SetPrefix("client")
	phone := flag.String("phone", os.Getenv("NEBULA_PHONE"), "account phone number")
	password := flag.String("password", os.Getenv("NEBULA_PASSWORD"), "account password")
	flag.Parse()

	logger.Info("starting client")
	cfg := config.Load()

	persist := openSessionStore(cfg)
	defer persist.Close()

	sess := session.New(cfg, persist, session.LogNotifier{})
	sess.Channel().OnStatus(func(st transport.Status) {
		logger.Infof("channel status: %s", st)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	restored, err := sess.Restore(ctx)
	if err != nil {
		logger.Errorf("restore session: %v", err)
	}
	if !restored {
		if *phone == "" || *password == "" {
			logger.Error("no saved session and no credentials given, set -phone and -password")
			cancel()
			os.Exit(1)
		}
		if err := sess.Login(ctx, *phone, *password); err != nil {
			logger.Errorf("login: %v", err)
			cancel()
			os.Exit(1)
		}
	}
	cancel()
	if u, ok := sess.User(); ok {
		logger.Infof("signed in as %s (id=%d)", u.Nickname, u.ID)
	}

	refreshCtx, refreshCancel := context.WithCancel(context.Background())
	go refreshLoop(refreshCtx, sess, cfg.MatchRefresh)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	refreshCancel()
	sess.Channel().Disconnect()
	logger.Info("client stopped")
}

// refreshLoop keeps the recent-chat and active-match views current. The
// interval is capped in config so match state is never more than a
// minute stale.
func refreshLoop(ctx context.Context, sess *session.Session, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if chats := sess.Chats(); chats != nil {
			if err := chats.Refresh(callCtx); err != nil {
				logger.Errorf("refresh chats: %v", err)
			}
		}
		if matches := sess.Matches(); matches != nil {
			if err := matches.Refresh(callCtx); err != nil {
				logger.Errorf("refresh matches: %v", err)
			}
		}
		cancel()
	}
}

func openSessionStore(cfg *config.Config) storage.SessionStore {
	if cfg.Redis.URL == "" {
		logger.Info("no redis configured, session will not survive restarts")
		return memory.New()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := redis.New(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Errorf("redis unavailable, falling back to memory store: %v", err)
		return memory.New()
	}
	logger.Info("redis session store connected")
	return store
}
