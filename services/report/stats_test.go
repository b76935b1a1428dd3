package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/walletreel/walletreel/models"
)

const owner = "0xOwner000000000000000000000000000000000a"

func TestComputeStats(t *testing.T) {
	txs := []models.Transaction{
		{From: owner, To: "0xAAA", Value: "1000000000000000000"},
		{From: "0xaaa", To: owner, Value: "500000000000000000"},
		{From: "0xBBB", To: "0xOWNER000000000000000000000000000000000A", Value: "600000000000000000"},
		{From: owner, To: "", ContractAddress: "0xccc", Value: "0"},
		{From: owner, To: "0xddd", Value: "2500000", TokenDecimal: "6", TokenSymbol: "USDC"},
	}

	stats := ComputeStats(owner, txs)

	assert.Equal(t, 3, stats.UniqueAddresses)
	// 1 ETH, 0.6 ETH and 2.5 USDC exceed the threshold; exactly 0.5 does not
	assert.Equal(t, 3, stats.SignificantTransactions)
	assert.InDelta(t, 4.6, stats.TotalValue, 1e-9)
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(owner, nil)
	assert.Equal(t, models.PeriodStats{}, stats)
}

func TestComputeStatsUnparseableValue(t *testing.T) {
	stats := ComputeStats(owner, []models.Transaction{{From: "0x1", To: "0x2", Value: "not-a-number"}})
	assert.Equal(t, 2, stats.UniqueAddresses)
	assert.Zero(t, stats.SignificantTransactions)
	assert.Zero(t, stats.TotalValue)
}
