package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render <request-id>",
	Short: "Render a completed video request and wait for the output",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, "")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := newRenderService(ctx, cfg, repo, log)
	if err != nil {
		return err
	}
	if svc == nil {
		return fmt.Errorf("RENDER_BASE_URL is not configured")
	}

	result, err := svc.Render(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Render:  %s\n", result.RenderID)
	fmt.Fprintf(out, "Video:   %s\n", result.VideoURL)
	fmt.Fprintf(out, "Size:    %s\n", humanize.Bytes(uint64(result.VideoSize)))
	return nil
}
