package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"clipsync-server/internal/clip"
	"clipsync-server/internal/config"
	"clipsync-server/internal/server"
	"clipsync-server/internal/token"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("parse log level")
	}
	zerolog.SetGlobalLevel(level)
	gin.SetMode(cfg.GinMode)

	secret := cfg.DownloadSecret
	if secret == "" {
		secret, err = token.RandomSecret()
		if err != nil {
			log.Fatal().Err(err).Msg("generate download secret")
		}
	}
	signer, err := token.NewSigner(secret, "clipsync")
	if err != nil {
		log.Fatal().Err(err).Msg("init token signer")
	}

	registry := clip.NewRegistry(clip.RegistryOptions{
		TTL: cfg.SessionTTL,
		Limits: clip.Limits{
			MaxTextBytes:    cfg.MaxTextBytes,
			MaxFileBytes:    cfg.MaxFileBytes,
			MaxSessionBytes: cfg.MaxSessionBytes,
			MaxItems:        cfg.MaxItems,
		},
		Signer: signer,
	})
	router := server.NewRouter(server.Deps{
		Registry:     registry,
		Signer:       signer,
		MaxFileBytes: cfg.MaxFileBytes,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return clip.NewScheduler(registry, time.Second).Run(ctx)
	})
	g.Go(func() error {
		return server.Run(ctx, cfg, router)
	})

	log.Info().Int("port", cfg.Port).Dur("ttl", cfg.SessionTTL).Msg("listening")
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
