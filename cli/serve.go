package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/walletreel/walletreel/handlers/api"
	"github.com/walletreel/walletreel/services/video"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with its generation workers and stale sweeper",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, cfg.LogDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Failed to open repository")
		return err
	}
	defer repo.Close()

	generator, err := newGenerator(cfg, log)
	if err != nil {
		return err
	}

	validator := newValidator(cfg)
	queue := video.NewJobQueue(cfg.Queue.Workers, cfg.Queue.MaxQueued, cfg.Queue.ProcessTimeout, log)
	videoService := video.NewService(
		repo,
		newExplorer(cfg, log),
		generator,
		validator,
		queue,
		video.Config{
			ChainID:        cfg.Explorer.ChainID,
			Network:        cfg.Explorer.Network,
			ProcessTimeout: cfg.Queue.ProcessTimeout,
		},
		log,
	)
	videoService.Start()
	defer videoService.Close()

	sweeper := video.NewSweeper(repo, queue, cfg.Queue.ProcessTimeout, log)
	if err := sweeper.Start(cfg.Queue.SweepSchedule); err != nil {
		return err
	}
	defer sweeper.Stop()

	var renderSvc api.RenderService
	rs, err := newRenderService(ctx, cfg, repo, log)
	if err != nil {
		return err
	}
	if rs != nil {
		renderSvc = rs
	} else {
		log.Warn("RENDER_BASE_URL not set, rendering is disabled")
	}

	server := api.NewServer(cfg,
		api.WithLogger(log),
		api.WithServices(videoService, renderSvc, validator),
		api.WithJobs(queue),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	log.WithFields(logrus.Fields{
		"port":        cfg.ServerPort,
		"environment": cfg.Environment,
		"db_driver":   cfg.Database.Driver,
		"workers":     cfg.Queue.Workers,
	}).Info("walletreel started")

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("Server error")
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown error")
		return err
	}
	return nil
}
