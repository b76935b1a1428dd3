package cli

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/walletreel/walletreel/models"
)

var (
	fetchDays     int
	fetchActivity string
	fetchJSON     bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <address>",
	Short: "Fetch a wallet's balance and recent activity from the block explorer",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().IntVar(&fetchDays, "days", 30, "look-back window in days")
	fetchCmd.Flags().StringVar(&fetchActivity, "activity", string(models.ActivityTransactions), "transactions, tokens or nft")
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "print the raw activity as JSON")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, "")
	if err != nil {
		return err
	}

	validator := newValidator(cfg)
	activity := models.ActivityType(fetchActivity)
	if err := validator.ValidateAddress("address", args[0]); err != nil {
		return err
	}
	if err := validator.ValidateDuration(fetchDays); err != nil {
		return err
	}
	if err := validator.ValidateActivityType(activity); err != nil {
		return err
	}

	result, err := newExplorer(cfg, log).FetchActivity(cmd.Context(), args[0], fetchDays, activity)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if fetchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "Address:      %s\n", args[0])
	fmt.Fprintf(out, "Balance:      %s\n", formatWei(result.Balance))
	fmt.Fprintf(out, "Start block:  %s\n", humanize.Comma(result.StartBlock))
	fmt.Fprintf(out, "Activity:     %s over %d days\n", activity, fetchDays)
	fmt.Fprintf(out, "Transactions: %s\n", humanize.Comma(int64(len(result.Transactions))))
	return nil
}

// formatWei renders a wei string as ether.
func formatWei(wei string) string {
	if wei == "" {
		return "unknown"
	}
	v, ok := new(big.Float).SetString(wei)
	if !ok {
		return wei
	}
	eth, _ := new(big.Float).Quo(v, big.NewFloat(1e18)).Float64()
	return humanize.Commaf(eth) + " ETH"
}
