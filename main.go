// main.go
//
// Entry point for the escape room server: loads config, wires storage,
// generation providers and the HTTP server.
package main

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/escaperoom/assets"
	"github.com/robalobadob/escaperoom/internal/ai"
	"github.com/robalobadob/escaperoom/internal/config"
	"github.com/robalobadob/escaperoom/internal/daily"
	"github.com/robalobadob/escaperoom/internal/httpserver"
	"github.com/robalobadob/escaperoom/internal/records"
	"github.com/robalobadob/escaperoom/internal/scene"
	"github.com/robalobadob/escaperoom/internal/store"
	"github.com/robalobadob/escaperoom/internal/themes"
	"github.com/robalobadob/escaperoom/internal/toolkit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	catalog, err := themes.Load(cfg.ThemesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load themes")
	}

	ctx := context.Background()
	db, err := records.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("failed to open database")
	}
	defer db.Close()
	if err := records.Migrate(ctx, db, assets.Migrations()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	sessions := store.NewMemoryStore()
	if cfg.RedisURL != "" {
		rs, err := store.NewRedisStore(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rs.Close()
		sessions = rs
		log.Info().Dur("ttl", cfg.SessionTTL).Msg("sessions stored in redis")
	}

	p := buildProviders(cfg)
	gen := &scene.Generator{Catalog: catalog}
	switch cfg.SceneProvider {
	case "openai":
		gen.Text, gen.Images = p.openaiText, p.openaiImages
	case "google":
		gen.Text, gen.Images = p.googleText, p.googleImages
	}
	if gen.Images == nil {
		log.Warn().Str("provider", cfg.SceneProvider).Msg("no scene image provider, using placeholder scenes")
	}

	kit := toolkit.New(catalog, cfg.ToolkitLanguage,
		toolkit.Provider{Name: "openai", Text: p.openaiText, Images: p.openaiImages},
		toolkit.Provider{Name: "google", Text: p.googleText, Images: p.googleImages, Password: cfg.GeminiPassword},
	)

	t, s := catalog.Stats()
	log.Info().Int("themes", t).Int("styles", s).Interface("toolkit", kit.Providers()).Msg("content loaded")

	srv := httpserver.New(httpserver.Deps{
		Config:   cfg,
		Sessions: sessions,
		Records:  records.New(db),
		Daily:    daily.NewStore(db),
		Scenes:   gen,
		Images:   scene.NewCache(0),
		Catalog:  catalog,
		Toolkit:  kit,
	})
	log.Info().Str("port", cfg.Port).Msg("starting escaperoom server")
	if err := srv.Start(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func setupLogging(cfg config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if strings.EqualFold(cfg.LogFormat, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// providers holds whichever generation clients have keys configured.
// A nil interface field means the provider is unavailable.
type providers struct {
	openaiText   ai.TextGenerator
	openaiImages ai.ImageGenerator
	googleText   ai.TextGenerator
	googleImages ai.ImageGenerator
}

func buildProviders(cfg config.Config) providers {
	var p providers
	if cfg.OpenAIKey != "" {
		if c, err := ai.NewChatClient(ai.ChatConfig{
			Provider: "openai",
			APIKey:   cfg.OpenAIKey,
			BaseURL:  cfg.OpenAIBaseURL,
			Models:   cfg.OpenAITextModels,
			Timeout:  cfg.GenerationTimeout,
		}); err != nil {
			log.Warn().Err(err).Msg("openai text disabled")
		} else {
			p.openaiText = c
		}
		if c, err := ai.NewDalleClient(ai.DalleConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIImageModel,
			Timeout: cfg.GenerationTimeout,
		}); err != nil {
			log.Warn().Err(err).Msg("openai images disabled")
		} else {
			p.openaiImages = c
		}
	}
	if cfg.GeminiKey != "" {
		// Gemini serves the chat-completions protocol under /openai.
		if c, err := ai.NewChatClient(ai.ChatConfig{
			Provider: "google",
			APIKey:   cfg.GeminiKey,
			BaseURL:  strings.TrimRight(cfg.GeminiBaseURL, "/") + "/openai",
			Models:   cfg.GeminiTextModels,
			Timeout:  cfg.GenerationTimeout,
		}); err != nil {
			log.Warn().Err(err).Msg("gemini text disabled")
		} else {
			p.googleText = c
		}
		if c, err := ai.NewImagenClient(ai.ImagenConfig{
			APIKey:  cfg.GeminiKey,
			BaseURL: cfg.GeminiBaseURL,
			Models:  cfg.ImagenModels,
			Timeout: cfg.GenerationTimeout,
		}); err != nil {
			log.Warn().Err(err).Msg("imagen disabled")
		} else {
			p.googleImages = c
		}
	}
	return p
}
