package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var payloadCmd = &cobra.Command{
	Use:   "payload <request-id>",
	Short: "Print the render payload archived for a video request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPayload,
}

type payloadLoader interface {
	LoadRenderPayload(ctx context.Context, id string, out interface{}) error
}

func runPayload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	archive, err := newArchive(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if archive == nil {
		return fmt.Errorf("payload archiving is disabled (SPACES_ENABLED is not set)")
	}
	return printPayload(cmd.Context(), archive, args[0], cmd.OutOrStdout())
}

func printPayload(ctx context.Context, loader payloadLoader, id string, w io.Writer) error {
	var payload json.RawMessage
	if err := loader.LoadRenderPayload(ctx, id, &payload); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
