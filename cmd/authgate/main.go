package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seclane/authgate/adapters/audit"
	"github.com/seclane/authgate/adapters/store"
	"github.com/seclane/authgate/adapters/tokenizer"
	"github.com/seclane/authgate/adapters/verifier"
	"github.com/seclane/authgate/ports"
	"github.com/seclane/authgate/service"
	"github.com/seclane/authgate/transport/http"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Generate a new ECDSA key pair (you would normally load this from somewhere secure)
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate signing key: %v", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opts)

	// Durable tier backend
	var newDurable func(sessionID string) ports.KV
	switch cfg.StoreBackend {
	case "bolt":
		db, err := store.OpenBolt(cfg.BoltPath)
		if err != nil {
			log.Fatalf("Failed to open bolt store: %v", err)
		}
		defer db.Close()
		newDurable = func(sessionID string) ports.KV {
			return store.NewBoltStore(db, sessionID)
		}
	default:
		newDurable = func(sessionID string) ports.KV {
			return store.NewRedisStore(redisClient, sessionID)
		}
	}

	// Audit sink backend
	var sink ports.AuditSink
	switch cfg.AuditBackend {
	case "log":
		sink = audit.NewZapSink(logger)
	default:
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			log.Fatalf("Failed to create audit publisher: %v", err)
		}
		sink = audit.NewWatermillSink(publisher)
	}

	totpVerifier := verifier.NewTOTPVerifier(verifier.NewRedisSecretSource(redisClient))
	ephemerals := store.NewEphemeralTiers()

	authorityCfg := service.Config{
		StalePendingWindow:    cfg.StalePendingWindow,
		FreshLoginWindow:      cfg.FreshLoginWindow,
		SessionValidityWindow: cfg.SessionValidityWindow,
	}

	factory := func(sessionID, userID string, mfaRequired bool) *service.Authority {
		authOpts := []service.Option{
			service.WithConfig(authorityCfg),
			service.WithLogger(logger),
		}
		if !mfaRequired {
			authOpts = append(authOpts, service.WithoutSecondFactor())
		}
		return service.NewAuthority(
			userID,
			newDurable(sessionID),
			ephemerals.Tier(sessionID),
			totpVerifier,
			sink,
			authOpts...,
		)
	}

	router := http.SetupRouter(factory, tokenizer.NewJWTTokenizer(privateKey), ephemerals.Drop, cfg.UpstreamKey)

	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
