package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"os"
)

// BootstrapModerator creates an initial moderator account when none
// exists. It is idempotent: if any moderator already exists, it does
// nothing.
func BootstrapModerator(ctx context.Context, repo PrincipalRepository, cfg Config) error {
	if !cfg.BootstrapModeratorEnabled {
		return nil
	}

	has, err := repo.HasAny(ctx, KindModerator)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	password, err := generatePassword(32)
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	if _, err := repo.Create(ctx, KindModerator, cfg.InitialModeratorEmail, "Initial Moderator", hash); err != nil {
		return err
	}

	if cfg.InitialModeratorPasswordPath != "" {
		if err := os.WriteFile(cfg.InitialModeratorPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		log.Printf("initial moderator created; credentials written to %s", cfg.InitialModeratorPasswordPath)
	} else {
		log.Printf("initial moderator created email=%s password=%s", cfg.InitialModeratorEmail, password)
	}

	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 encoding: need 3/4 overhead; ensure enough bytes
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
