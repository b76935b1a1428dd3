package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/walletreel/walletreel/models"
	"github.com/walletreel/walletreel/services/report"
)

var (
	partitionPeriods int
	partitionOwner   string
	partitionPrompt  string
	partitionJSON    bool
)

var partitionCmd = &cobra.Command{
	Use:   "partition <transactions.json>",
	Short: "Split a transaction list into periods and print the local report",
	Long: `Reads either a JSON array of explorer transactions or a raw explorer
response ({"status":"1","result":[...]}) and runs the local report generator
over it. No network access is needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runPartition,
}

func init() {
	partitionCmd.Flags().IntVar(&partitionPeriods, "periods", 4, "number of periods")
	partitionCmd.Flags().StringVar(&partitionOwner, "owner", "", "wallet address the report is about")
	partitionCmd.Flags().StringVar(&partitionPrompt, "prompt", "", "request text included in the intro")
	partitionCmd.Flags().BoolVar(&partitionJSON, "json", false, "print the full report as JSON")
}

func runPartition(cmd *cobra.Command, args []string) error {
	if partitionPeriods <= 0 {
		return fmt.Errorf("--periods must be positive")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrap(err, "read transactions")
	}
	txs, err := parseTransactions(data)
	if err != nil {
		return err
	}

	rep, err := report.NewLocalGenerator().Generate(cmd.Context(), report.Input{
		Prompt:       partitionPrompt,
		Owner:        partitionOwner,
		Periods:      partitionPeriods,
		Transactions: txs,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if partitionJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Fprintln(out, rep.Intro)
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tTXS\tVALUE\tADDRESSES\tSIGNIFICANT")
	for _, p := range rep.Periods {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
			p.Period,
			humanize.Comma(int64(len(p.Transactions))),
			humanize.FormatFloat("#,###.####", p.Stats.TotalValue),
			p.Stats.UniqueAddresses,
			p.Stats.SignificantTransactions,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, rep.Outro)
	return nil
}

// parseTransactions accepts a bare array or an explorer envelope.
func parseTransactions(data []byte) ([]models.Transaction, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("transactions file is not valid JSON")
	}

	list := gjson.ParseBytes(data)
	if !list.IsArray() {
		list = list.Get("result")
		if !list.IsArray() {
			return nil, errors.New(`expected a JSON array or an object with a "result" array`)
		}
	}

	var txs []models.Transaction
	if err := json.Unmarshal([]byte(list.Raw), &txs); err != nil {
		return nil, errors.Wrap(err, "decode transactions")
	}
	return txs, nil
}
