// Command authentication checks a username and password against the order
// desk store and prints a signed session token for the orderdesk command.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gartstein/orderdesk/internal/orders/auth"
	"github.com/gartstein/orderdesk/internal/orders/config"
	"github.com/gartstein/orderdesk/internal/orders/controller"
	"github.com/gartstein/orderdesk/internal/orders/db"
	"go.uber.org/zap"
)

// TokenResponse represents the response structure
type TokenResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	ExpiresAt time.Time `json:"expires_at"`
}

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	configPath := flag.String("config", config.DefaultPath, "configuration file")
	username := flag.String("username", "", "login name")
	flag.Parse()

	password := os.Getenv("ORDERDESK_PASSWORD")
	if *username == "" || password == "" {
		fmt.Fprintln(os.Stderr, "usage: ORDERDESK_PASSWORD=... authentication -username name")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	resp, err := login(context.Background(), cfg, logger, *username, password)
	if err != nil {
		logger.Error("authentication failed", zap.String("username", *username), zap.Error(err))
		os.Exit(1)
	}
	if err := json.NewEncoder(os.Stdout).Encode(resp); err != nil {
		logger.Error("failed to encode token", zap.Error(err))
		os.Exit(1)
	}
}

func login(ctx context.Context, cfg *config.Config, logger *zap.Logger, username, password string) (*TokenResponse, error) {
	repo, err := db.NewRepository(ctx, cfg.Database(), logger)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	svc := controller.NewAuthService(repo, nil, logger,
		controller.WithOperationTimeout(cfg.OperationTimeout),
		controller.WithMaxRetries(cfg.MaxRetries),
		controller.WithHashCost(cfg.BcryptCost),
	)
	actor, err := svc.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	token, err := issuer.Issue(actor)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		Token:     token,
		Username:  actor.Username,
		IsAdmin:   actor.IsAdmin,
		ExpiresAt: time.Now().Add(issuer.TTL()).UTC(),
	}, nil
}
