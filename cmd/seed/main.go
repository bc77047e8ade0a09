package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pixsearch-identity/config"
	"github.com/oksasatya/pixsearch-identity/internal/container"
	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
	"github.com/oksasatya/pixsearch-identity/internal/domain/repository"
	"github.com/oksasatya/pixsearch-identity/pkg/helpers"
)

// seed creates a verified demo account so login works without a mail round-trip.
func main() {
	_ = godotenv.Load()
	email := flag.String("email", "demo@pixsearch.local", "account email")
	password := flag.String("password", "Demo1234!", "account password")
	flag.Parse()

	cfg := config.Load()
	cfg.RedisAddr, cfg.GCSBucket, cfg.ElasticsearchAddrs = "", "", ""
	cfg.MailTransport = "log"
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := container.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer c.Close()

	hash, err := c.Hasher.Hash(*password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	u := &entity.User{FirstName: "Demo", LastName: "User", Email: *email, PasswordHash: hash}
	err = c.Store.Users().Create(ctx, u)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrDuplicateEmail):
		existing, gerr := c.Store.Users().GetByEmail(ctx, *email)
		if gerr != nil {
			log.Fatalf("load existing user: %v", gerr)
		}
		u = existing
		if err := c.Store.Users().UpdatePassword(ctx, u.ID, hash); err != nil {
			log.Fatalf("reset password: %v", err)
		}
	default:
		log.Fatalf("seed user: %v", err)
	}
	if err := c.Store.Users().MarkVerified(ctx, u.ID); err != nil {
		log.Fatalf("mark verified: %v", err)
	}
	helpers.LogInfo(logger, "seeded verified user", logrus.Fields{"user_id": u.ID, "email": u.Email})
}
