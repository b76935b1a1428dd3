package report

import (
	"math/big"
	"strings"

	"github.com/walletreel/walletreel/models"
)

var significantThreshold = big.NewFloat(0.5)

// ComputeStats summarizes txs from the point of view of owner.
func ComputeStats(owner string, txs []models.Transaction) models.PeriodStats {
	owner = strings.ToLower(owner)
	seen := make(map[string]struct{})
	total := new(big.Float)
	significant := 0

	for _, tx := range txs {
		for _, addr := range []string{tx.From, tx.To} {
			addr = strings.ToLower(strings.TrimSpace(addr))
			if addr == "" || addr == owner {
				continue
			}
			seen[addr] = struct{}{}
		}

		amount := tx.Amount()
		total.Add(total, amount)
		if amount.Cmp(significantThreshold) > 0 {
			significant++
		}
	}

	value, _ := total.Float64()
	return models.PeriodStats{
		TotalValue:              value,
		UniqueAddresses:         len(seen),
		SignificantTransactions: significant,
	}
}
