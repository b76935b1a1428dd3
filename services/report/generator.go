// Package report turns wallet transactions into period-partitioned reports.
package report

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/walletreel/walletreel/models"
)

type Input struct {
	Prompt       string
	Owner        string
	Periods      int
	Transactions []models.Transaction
}

type Generator interface {
	Generate(ctx context.Context, in Input) (*models.Report, error)
}

// LocalGenerator builds reports from Partition and ComputeStats alone.
type LocalGenerator struct{}

func NewLocalGenerator() *LocalGenerator {
	return &LocalGenerator{}
}

func (g *LocalGenerator) Generate(ctx context.Context, in Input) (*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups := Partition(in.Transactions, in.Periods)
	periods := make([]models.PeriodReport, 0, len(groups))
	for _, group := range groups {
		stats := ComputeStats(in.Owner, group.Transactions)
		periods = append(periods, models.PeriodReport{
			Period:       group.Label(),
			StartTime:    group.Start,
			EndTime:      group.End,
			Narrative:    narrate(group, stats),
			Highlights:   highlights(in.Owner, group.Transactions, stats),
			Stats:        stats,
			Transactions: group.Transactions,
		})
	}

	return &models.Report{
		Intro:   intro(in),
		Outro:   outro(in, periods),
		Periods: periods,
	}, nil
}

func intro(in Input) string {
	who := shortAddress(in.Owner)
	if who == "" {
		who = "this wallet"
	}
	if len(in.Transactions) == 0 {
		return fmt.Sprintf("A quiet stretch for %s: no activity was recorded.", who)
	}
	text := fmt.Sprintf("The story of %s, told through %d transactions.", who, len(in.Transactions))
	if prompt := strings.TrimSpace(in.Prompt); prompt != "" {
		text += " " + prompt
	}
	return text
}

func outro(in Input, periods []models.PeriodReport) string {
	if len(periods) == 0 {
		return "Nothing moved. Sometimes holding is the whole strategy."
	}
	total := ComputeStats(in.Owner, in.Transactions)
	return fmt.Sprintf("Across %d periods the wallet moved %s with %d counterparties.",
		len(periods), formatAmount(total.TotalValue, symbolOf(in.Transactions)), total.UniqueAddresses)
}

func narrate(group Group, stats models.PeriodStats) string {
	noun := "transactions"
	if len(group.Transactions) == 1 {
		noun = "transaction"
	}
	return fmt.Sprintf("From %s the wallet made %d %s worth %s, trading with %d addresses.",
		group.Label(), len(group.Transactions), noun,
		formatAmount(stats.TotalValue, symbolOf(group.Transactions)), stats.UniqueAddresses)
}

func highlights(owner string, txs []models.Transaction, stats models.PeriodStats) []string {
	out := make([]string, 0, 3)

	var largest *models.Transaction
	largestAmount := new(big.Float)
	for i := range txs {
		if amount := txs[i].Amount(); amount.Cmp(largestAmount) > 0 {
			largest = &txs[i]
			largestAmount = amount
		}
	}
	if largest != nil {
		value, _ := largestAmount.Float64()
		direction := "received"
		if strings.EqualFold(largest.From, owner) {
			direction = "sent"
		}
		out = append(out, fmt.Sprintf("Largest transfer: %s %s", formatAmount(value, symbolOf(txs)), direction))
	}
	if stats.SignificantTransactions > 0 {
		out = append(out, fmt.Sprintf("%d significant transactions", stats.SignificantTransactions))
	}
	if stats.UniqueAddresses > 0 {
		out = append(out, fmt.Sprintf("%d unique counterparties", stats.UniqueAddresses))
	}
	return out
}

func symbolOf(txs []models.Transaction) string {
	symbol := ""
	for _, tx := range txs {
		if tx.TokenSymbol == "" {
			return "ETH"
		}
		if symbol != "" && symbol != tx.TokenSymbol {
			return "units"
		}
		symbol = tx.TokenSymbol
	}
	if symbol == "" {
		return "ETH"
	}
	return symbol
}

func formatAmount(value float64, symbol string) string {
	return fmt.Sprintf("%s %s", strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", value), "0"), "."), symbol)
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
