package models

import (
	"math/big"
	"strconv"
	"strings"
)

const defaultDecimals = 18

// MaxTokenDecimals is the largest scale a uint256 amount can carry.
const MaxTokenDecimals = 77

// Transaction mirrors a block-explorer transfer entry. Fields are kept as the
// explorer returns them (decimal strings) so they round-trip unmodified.
type Transaction struct {
	BlockNumber       string `json:"blockNumber"`
	TimeStamp         string `json:"timeStamp"`
	Hash              string `json:"hash"`
	Nonce             string `json:"nonce,omitempty"`
	BlockHash         string `json:"blockHash,omitempty"`
	TransactionIndex  string `json:"transactionIndex,omitempty"`
	From              string `json:"from"`
	To                string `json:"to"`
	Value             string `json:"value"`
	Gas               string `json:"gas,omitempty"`
	GasPrice          string `json:"gasPrice,omitempty"`
	GasUsed           string `json:"gasUsed,omitempty"`
	CumulativeGasUsed string `json:"cumulativeGasUsed,omitempty"`
	IsError           string `json:"isError,omitempty"`
	TxReceiptStatus   string `json:"txreceipt_status,omitempty"`
	Input             string `json:"input,omitempty"`
	ContractAddress   string `json:"contractAddress,omitempty"`
	MethodID          string `json:"methodId,omitempty"`
	FunctionName      string `json:"functionName,omitempty"`
	Confirmations     string `json:"confirmations,omitempty"`
	TokenName         string `json:"tokenName,omitempty"`
	TokenSymbol       string `json:"tokenSymbol,omitempty"`
	TokenDecimal      string `json:"tokenDecimal,omitempty"`
	TokenID           string `json:"tokenID,omitempty"`
}

// Unix returns the transaction timestamp in seconds, or 0 when unparseable.
func (t Transaction) Unix() int64 {
	ts, err := strconv.ParseInt(strings.TrimSpace(t.TimeStamp), 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// Amount returns the transferred value in whole units (ether, or token units
// when a token decimal is present).
func (t Transaction) Amount() *big.Float {
	raw, ok := new(big.Int).SetString(strings.TrimSpace(t.Value), 10)
	if !ok {
		return new(big.Float)
	}

	decimals, ok := t.Decimals()
	if !ok {
		return new(big.Float)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Float).Quo(new(big.Float).SetInt(raw), new(big.Float).SetInt(scale))
}

// Decimals returns the token scale, 18 when none is given. ok is false for
// a scale that is not an integer in [0, MaxTokenDecimals].
func (t Transaction) Decimals() (int, bool) {
	raw := strings.TrimSpace(t.TokenDecimal)
	if raw == "" {
		return defaultDecimals, true
	}
	d, err := strconv.Atoi(raw)
	if err != nil || d < 0 || d > MaxTokenDecimals {
		return 0, false
	}
	return d, true
}
