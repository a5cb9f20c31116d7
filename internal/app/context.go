package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/1of9europe/ViteFait-sub001/internal/config"
	"github.com/1of9europe/ViteFait-sub001/internal/engine/auth"
	"github.com/1of9europe/ViteFait-sub001/internal/gateway"
	"github.com/1of9europe/ViteFait-sub001/internal/repo"
)

// ResolveConfig loads vitefait.yml from the workspace, falling back to the
// built-in defaults when the file does not exist.
func ResolveConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BuildGateway constructs the payment provider client from config. Without a
// secret key in the environment the in-memory sandbox gateway is used, so
// local workflows run end to end with no provider account.
func BuildGateway(cfg *config.Config) (gateway.Gateway, error) {
	secretEnv := cfg.Gateway.SecretKeyEnv
	secret := ""
	if secretEnv != "" {
		secret = os.Getenv(secretEnv)
	}
	if secret == "" {
		return gateway.NewFake(), nil
	}
	if cfg.Gateway.BaseURL == "" {
		return nil, fmt.Errorf("gateway.base_url is required when %s is set", secretEnv)
	}
	client := gateway.NewClient(cfg.Gateway.BaseURL, secret)
	if cfg.Gateway.TimeoutSeconds > 0 {
		client.HTTPClient.Timeout = time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second
	}
	return client, nil
}

// ResolveActor turns a local user id into an acting principal. The role always
// comes from the users table, never from a flag.
func ResolveActor(ctx context.Context, r repo.Repo, userID string) (auth.Actor, error) {
	if userID == "" {
		return auth.Actor{}, fmt.Errorf("user not specified; use --user")
	}
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return auth.Actor{}, fmt.Errorf("resolve user %s: %w", userID, err)
	}
	return auth.Actor{ID: u.ID, Role: u.Role}, nil
}
