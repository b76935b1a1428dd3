// Package explorer talks to Etherscan-compatible block explorer APIs.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/walletreel/walletreel/metrics"
	"github.com/walletreel/walletreel/models"
)

const (
	actionBlockByTime = "getblocknobytime"
	actionBalance     = "balance"
	actionTxList      = "txlist"
	actionTokenTx     = "tokentx"
	actionNFTTx       = "tokennfttx"

	maxEndBlock = "99999999"
)

type Config struct {
	BaseURL           string
	APIKey            string
	ChainID           int64
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxTransactions   int
	CacheTTL          time.Duration
	Strict            bool
	Logger            *logrus.Logger
}

// Activity is the wallet snapshot handed to the report generator.
type Activity struct {
	Balance      string               `json:"balance"`
	StartBlock   int64                `json:"start_block"`
	Transactions []models.Transaction `json:"transactions"`
}

// UpstreamError is returned when the explorer answers with a non-success status.
type UpstreamError struct {
	Action  string
	Status  string
	Message string
	Result  string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("explorer %s: status %s: %s (%s)", e.Action, e.Status, e.Message, e.Result)
}

type Client struct {
	http    *req.Client
	cfg     Config
	limiter *rate.Limiter
	cache   *cache.Cache
	logger  *logrus.Logger
	now     func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTransactions <= 0 {
		cfg.MaxTransactions = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	httpClient := req.C().
		SetTimeout(cfg.Timeout).
		SetUserAgent("walletreel/1.0").
		SetCommonQueryParam("apikey", cfg.APIKey)
	if cfg.ChainID > 0 {
		httpClient.SetCommonQueryParam("chainid", strconv.FormatInt(cfg.ChainID, 10))
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Client{
		http:    httpClient,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  cfg.Logger,
		now:     time.Now,
	}
	if cfg.CacheTTL > 0 {
		c.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return c
}

// ActionFor maps an activity type to the explorer list endpoint.
func ActionFor(activity models.ActivityType) string {
	switch activity {
	case models.ActivityTokens:
		return actionTokenTx
	case models.ActivityNFT:
		return actionNFTTx
	default:
		return actionTxList
	}
}

// FetchActivity resolves the block at now-days and returns the balance and
// the transfer list of the requested kind since that block.
//
// Outside strict mode an upstream failure degrades to an empty value (balance
// "", no transactions) and is only logged and counted.
func (c *Client) FetchActivity(ctx context.Context, address string, days int, activity models.ActivityType) (*Activity, error) {
	key := cacheKey(address, days, activity)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			return cached.(*Activity), nil
		}
	}

	logger := c.logger.WithFields(logrus.Fields{
		"address":  address,
		"days":     days,
		"activity": activity,
	})

	degraded := false
	absorb := func(action string, err error) error {
		if err == nil {
			return nil
		}
		metrics.ExplorerFailures.WithLabelValues(action).Inc()
		if c.cfg.Strict || ctx.Err() != nil {
			return err
		}
		degraded = true
		logger.WithError(err).WithField("action", action).Warn("Explorer call failed, using empty result")
		return nil
	}

	since := c.now().Add(-time.Duration(days) * 24 * time.Hour)
	startBlock, blockErr := c.BlockByTimestamp(ctx, since)
	if err := absorb(actionBlockByTime, blockErr); err != nil {
		return nil, err
	}

	balance, err := c.Balance(ctx, address)
	if err := absorb(actionBalance, err); err != nil {
		return nil, err
	}

	// Without a start block the list would span the whole history, so the
	// window stays empty instead.
	var txs []models.Transaction
	if blockErr == nil {
		txs, err = c.Transactions(ctx, address, activity, startBlock)
		if err := absorb(ActionFor(activity), err); err != nil {
			return nil, err
		}
	}
	if txs == nil {
		txs = []models.Transaction{}
	}

	result := &Activity{
		Balance:      balance,
		StartBlock:   startBlock,
		Transactions: txs,
	}

	if c.cache != nil && !degraded {
		c.cache.SetDefault(key, result)
	}

	logger.WithFields(logrus.Fields{
		"start_block":  startBlock,
		"transactions": len(txs),
		"degraded":     degraded,
	}).Info("Fetched wallet activity")

	return result, nil
}

// BlockByTimestamp returns the last block mined at or before ts.
func (c *Client) BlockByTimestamp(ctx context.Context, ts time.Time) (int64, error) {
	raw, err := c.call(ctx, map[string]string{
		"module":    "block",
		"action":    actionBlockByTime,
		"timestamp": strconv.FormatInt(ts.Unix(), 10),
		"closest":   "before",
	})
	if err != nil {
		return 0, err
	}

	block, err := strconv.ParseInt(raw.String(), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "explorer %s: invalid block number %q", actionBlockByTime, raw.String())
	}
	return block, nil
}

// Balance returns the wei balance of address as a decimal string.
func (c *Client) Balance(ctx context.Context, address string) (string, error) {
	raw, err := c.call(ctx, map[string]string{
		"module":  "account",
		"action":  actionBalance,
		"address": address,
		"tag":     "latest",
	})
	if err != nil {
		return "", err
	}
	return raw.String(), nil
}

// Transactions lists the transfers of the requested kind since startBlock,
// newest first.
func (c *Client) Transactions(ctx context.Context, address string, activity models.ActivityType, startBlock int64) ([]models.Transaction, error) {
	action := ActionFor(activity)
	raw, err := c.call(ctx, map[string]string{
		"module":     "account",
		"action":     action,
		"address":    address,
		"startblock": strconv.FormatInt(startBlock, 10),
		"endblock":   maxEndBlock,
		"page":       "1",
		"offset":     strconv.Itoa(c.cfg.MaxTransactions),
		"sort":       "desc",
	})
	if err != nil {
		return nil, err
	}

	if !raw.IsArray() {
		return nil, errors.Errorf("explorer %s: result is not a list", action)
	}

	var txs []models.Transaction
	if err := json.Unmarshal([]byte(raw.Raw), &txs); err != nil {
		return nil, errors.Wrapf(err, "explorer %s: decode transactions", action)
	}
	return txs, nil
}

func (c *Client) call(ctx context.Context, params map[string]string) (gjson.Result, error) {
	action := params["action"]

	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, errors.Wrapf(err, "explorer %s: rate limiter", action)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(c.cfg.BaseURL)
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "explorer %s request", action)
	}
	if !resp.IsSuccessState() {
		return gjson.Result{}, errors.Errorf("explorer %s: http status %d", action, resp.StatusCode)
	}

	body := resp.Bytes()
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.Errorf("explorer %s: invalid JSON response", action)
	}

	envelope := gjson.ParseBytes(body)
	status := envelope.Get("status").String()
	if status != "1" && !isEmptyList(envelope) {
		return gjson.Result{}, &UpstreamError{
			Action:  action,
			Status:  status,
			Message: envelope.Get("message").String(),
			Result:  envelope.Get("result").String(),
		}
	}

	return envelope.Get("result"), nil
}

// isEmptyList reports the status "0" envelope explorers send for an address
// with no matching transfers. It is a normal answer, not a failure.
func isEmptyList(envelope gjson.Result) bool {
	if !envelope.Get("result").IsArray() {
		return false
	}
	message := strings.ToLower(envelope.Get("message").String())
	return strings.HasPrefix(message, "no transactions found") ||
		strings.HasPrefix(message, "no records found")
}

func cacheKey(address string, days int, activity models.ActivityType) string {
	return fmt.Sprintf("%s|%d|%s", strings.ToLower(address), days, activity)
}
