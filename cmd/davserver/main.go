package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"davbridge/internal/app"
	"davbridge/pkg/auth"
	"davbridge/pkg/config"
	"davbridge/pkg/logger"
	"davbridge/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	logger.Init()
	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Warn("dotenv_load_failed", "error", err)
	}

	flags, err := config.ParseConfigFlags("davserver", os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	eff, err := config.LoadEffectiveConfig(flags)
	if err != nil {
		logger.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	initLogger(eff.Config.Logging)

	if flags.Token != "" {
		if err := printToken(eff.Config, flags.Token); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		logger.Error("invalid_config", "source", eff.Source, "error", err)
		os.Exit(1)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()
	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server exited", err, "", 0)
	}
}

// initLogger applies the configured level and format unless the
// environment already chose them.
func initLogger(c config.LoggingConfig) {
	level, format := c.Level, c.Format
	if os.Getenv("DAVBRIDGE_LOG_LEVEL") != "" {
		level = ""
	}
	if os.Getenv("DAVBRIDGE_LOG_FORMAT") != "" {
		format = ""
	}
	logger.InitWith(level, format)
}

func printToken(cfg *config.Config, subject string) error {
	secret := cfg.Security.JWTSecret
	if secret == "" {
		return errors.New("no JWT secret configured: set security.jwt_secret or DAVBRIDGE_JWT_SECRET")
	}
	now := time.Now()
	tok, err := auth.SignToken([]byte(secret), subject, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
	})
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Println(tok)
	return nil
}
