package main

import (
	"context"
	"fmt"
	"log"

	"quillboard-api/core"
)

func main() {
	cfg := core.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
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

	policies, err := core.LoadRatePolicies(cfg.RateLimitPolicyPath)
	if err != nil {
		log.Fatalf("failed to load rate limit policies: %v", err)
	}

	principals := core.NewPgPrincipalRepository(db)
	codec := core.NewTokenCodec([]byte(cfg.MemberJWTSecret), []byte(cfg.ModeratorJWTSecret), cfg.TokenTTL)
	authService := core.NewAuthService(principals, codec, cfg.MemberLockout, cfg.ModeratorLockout)
	authn := core.NewAuthenticator(codec, principals)
	rateStore := core.NewRedisRateCounter(redisClient)

	if err := core.BootstrapModerator(ctx, principals, cfg); err != nil {
		log.Fatalf("bootstrap moderator failed: %v", err)
	}

	router := core.NewRouter(cfg, authService, authn, principals, db, redisClient, rateStore, policies)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
