package cli

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/walletreel/walletreel/config"
	"github.com/walletreel/walletreel/explorer"
	"github.com/walletreel/walletreel/renderer"
	"github.com/walletreel/walletreel/repository"
	"github.com/walletreel/walletreel/repository/postgres"
	"github.com/walletreel/walletreel/repository/sqlite"
	"github.com/walletreel/walletreel/services/render"
	"github.com/walletreel/walletreel/services/report"
	"github.com/walletreel/walletreel/storage"
	"github.com/walletreel/walletreel/validation"
)

func openRepository(ctx context.Context, cfg *config.Config) (repository.VideoRepository, error) {
	if cfg.Database.Driver == "postgres" {
		db, err := postgres.Open(ctx, cfg.Database.DSN, postgres.Config{
			MaxConnections:     cfg.Database.MaxConnections,
			MaxIdleConnections: cfg.Database.MaxIdleConnections,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		repo := postgres.NewRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	}

	dbConfig := sqlite.DefaultDBConfig()
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.MaxIdleConnections = cfg.Database.MaxIdleConnections
	dbConfig.ConnMaxLifetime = cfg.Database.ConnMaxLifetime

	db, err := sqlite.Open(ctx, cfg.Database.Path, dbConfig)
	if err != nil {
		return nil, err
	}
	return sqlite.NewRepository(db), nil
}

func newExplorer(cfg *config.Config, log *logrus.Logger) *explorer.Client {
	return explorer.NewClient(explorer.Config{
		BaseURL:           cfg.Explorer.BaseURL,
		APIKey:            cfg.Explorer.APIKey,
		ChainID:           cfg.Explorer.ChainID,
		Timeout:           cfg.Explorer.Timeout,
		RequestsPerSecond: cfg.Explorer.RequestsPerSecond,
		MaxTransactions:   cfg.Explorer.MaxTransactions,
		CacheTTL:          cfg.Explorer.CacheTTL,
		Strict:            cfg.Explorer.Strict,
		Logger:            log,
	})
}

// newGenerator picks the language model when a key is configured and the
// local statistics generator otherwise.
func newGenerator(cfg *config.Config, log *logrus.Logger) (report.Generator, error) {
	if cfg.LLM.APIKey == "" {
		log.Warn("OPENAI_API_KEY not set, reports use the local generator")
		return report.NewLocalGenerator(), nil
	}
	generator, err := report.NewOpenAIGenerator(report.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}
	return generator, nil
}

func newValidator(cfg *config.Config) *validation.Validator {
	limits := validation.DefaultLimits()
	limits.MaxDurationDays = cfg.Queue.MaxDurationDays
	limits.MaxTransactions = cfg.Explorer.MaxTransactions
	return validation.NewValidator(limits)
}

// newRenderService returns nil when no rendering backend is configured.
func newRenderService(ctx context.Context, cfg *config.Config, repo repository.VideoRepository, log *logrus.Logger) (*render.Service, error) {
	if cfg.Render.BaseURL == "" {
		return nil, nil
	}

	client := renderer.NewClient(renderer.Config{
		BaseURL:      cfg.Render.BaseURL,
		APIKey:       cfg.Render.APIKey,
		Composition:  cfg.Render.Composition,
		PollInterval: cfg.Render.PollInterval,
		Timeout:      cfg.Render.Timeout,
		Logger:       log,
	})

	var archive render.Archiver
	spaces, err := newArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if spaces != nil {
		archive = spaces
	}

	return render.NewService(repo, client, archive, cfg.Render.Composition, log), nil
}

// newArchive returns nil when payload archiving is disabled.
func newArchive(ctx context.Context, cfg *config.Config) (*storage.SpacesClient, error) {
	if !cfg.Storage.Enabled {
		return nil, nil
	}
	return storage.NewSpacesClient(ctx, storage.SpacesConfig{
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		Bucket:    cfg.Storage.Bucket,
	})
}
