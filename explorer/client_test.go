package explorer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletreel/walletreel/metrics"
	"github.com/walletreel/walletreel/models"
)

const testAddress = "0xabc0000000000000000000000000000000000001"

type fakeExplorer struct {
	mu      sync.Mutex
	calls   []string
	queries []map[string]string
	handler func(action string, q map[string]string) string
}

func (f *fakeExplorer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}
	action := q["action"]

	f.mu.Lock()
	f.calls = append(f.calls, action)
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, f.handler(action, q))
}

func (f *fakeExplorer) called(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == action {
			n++
		}
	}
	return n
}

func (f *fakeExplorer) query(action string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.calls {
		if c == action {
			return f.queries[i]
		}
	}
	return nil
}

func okExplorer(action string, _ map[string]string) string {
	switch action {
	case actionBlockByTime:
		return `{"status":"1","message":"OK","result":"19000000"}`
	case actionBalance:
		return `{"status":"1","message":"OK","result":"1500000000000000000"}`
	default:
		return `{"status":"1","message":"OK","result":[
			{"blockNumber":"19000010","timeStamp":"1700000100","hash":"0x01","from":"0xabc0000000000000000000000000000000000001","to":"0xdef","value":"1000000000000000000"},
			{"blockNumber":"19000005","timeStamp":"1700000000","hash":"0x02","from":"0xdef","to":"0xabc0000000000000000000000000000000000001","value":"200000000000000000"}
		]}`
	}
}

func newTestClient(t *testing.T, url string, mutate func(*Config)) *Client {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := Config{
		BaseURL:         url,
		APIKey:          "test-key",
		ChainID:         1,
		Timeout:         5 * time.Second,
		MaxTransactions: 50,
		Logger:          logger,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c := NewClient(cfg)
	c.now = func() time.Time { return time.Unix(1700604800, 0) }
	return c
}

func TestFetchActivityTransactions(t *testing.T) {
	fake := &fakeExplorer{handler: okExplorer}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	activity, err := c.FetchActivity(context.Background(), testAddress, 7, models.ActivityTransactions)
	require.NoError(t, err)

	assert.Equal(t, "1500000000000000000", activity.Balance)
	assert.Equal(t, int64(19000000), activity.StartBlock)
	require.Len(t, activity.Transactions, 2)
	assert.Equal(t, "0x01", activity.Transactions[0].Hash)

	assert.Equal(t, 1, fake.called(actionTxList))
	assert.Zero(t, fake.called(actionTokenTx))
	assert.Zero(t, fake.called(actionNFTTx))

	blockQuery := fake.query(actionBlockByTime)
	require.NotNil(t, blockQuery)
	assert.Equal(t, "1700000000", blockQuery["timestamp"])
	assert.Equal(t, "before", blockQuery["closest"])

	listQuery := fake.query(actionTxList)
	require.NotNil(t, listQuery)
	assert.Equal(t, testAddress, listQuery["address"])
	assert.Equal(t, "19000000", listQuery["startblock"])
	assert.Equal(t, "50", listQuery["offset"])
	assert.Equal(t, "desc", listQuery["sort"])
	assert.Equal(t, "test-key", listQuery["apikey"])
	assert.Equal(t, "1", listQuery["chainid"])
}

func TestFetchActivityEndpointPerType(t *testing.T) {
	tests := []struct {
		activity models.ActivityType
		action   string
	}{
		{models.ActivityTransactions, actionTxList},
		{models.ActivityTokens, actionTokenTx},
		{models.ActivityNFT, actionNFTTx},
	}

	for _, tt := range tests {
		t.Run(string(tt.activity), func(t *testing.T) {
			fake := &fakeExplorer{handler: okExplorer}
			srv := httptest.NewServer(fake)
			defer srv.Close()

			c := newTestClient(t, srv.URL, nil)
			_, err := c.FetchActivity(context.Background(), testAddress, 30, tt.activity)
			require.NoError(t, err)
			assert.Equal(t, 1, fake.called(tt.action))
			assert.Len(t, fake.calls, 3)
		})
	}
}

func TestFetchActivityUpstreamFailureIsEmpty(t *testing.T) {
	fake := &fakeExplorer{handler: func(string, map[string]string) string {
		return `{"status":"0","message":"NOTOK","result":"Invalid API Key"}`
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	activity, err := c.FetchActivity(context.Background(), testAddress, 7, models.ActivityTransactions)
	require.NoError(t, err)
	assert.Equal(t, "", activity.Balance)
	assert.Equal(t, int64(0), activity.StartBlock)
	assert.NotNil(t, activity.Transactions)
	assert.Empty(t, activity.Transactions)

	// no start block, so the full history is never requested
	assert.Zero(t, fake.called(actionTxList))
}

func TestFetchActivityBlockFailureSkipsList(t *testing.T) {
	fake := &fakeExplorer{handler: func(action string, q map[string]string) string {
		if action == actionBlockByTime {
			return `{"status":"0","message":"NOTOK","result":"Error! No closest block found"}`
		}
		return okExplorer(action, q)
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	activity, err := c.FetchActivity(context.Background(), testAddress, 7, models.ActivityTransactions)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", activity.Balance)
	assert.Equal(t, int64(0), activity.StartBlock)
	assert.Empty(t, activity.Transactions)
	assert.Zero(t, fake.called(actionTxList))
}

func TestFetchActivityHTTPErrorIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	activity, err := c.FetchActivity(context.Background(), testAddress, 7, models.ActivityTokens)
	require.NoError(t, err)
	assert.Equal(t, "", activity.Balance)
	assert.Empty(t, activity.Transactions)
}

func TestFetchActivityStrict(t *testing.T) {
	fake := &fakeExplorer{handler: func(action string, q map[string]string) string {
		if action == actionBalance {
			return `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`
		}
		return okExplorer(action, q)
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.Strict = true })

	_, err := c.FetchActivity(context.Background(), testAddress, 7, models.ActivityTransactions)
	require.Error(t, err)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, actionBalance, upstream.Action)
	assert.Equal(t, "0", upstream.Status)
	assert.Contains(t, err.Error(), "Max rate limit reached")
	assert.Zero(t, fake.called(actionTxList))
}

func TestFetchActivityCache(t *testing.T) {
	fake := &fakeExplorer{handler: okExplorer}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.CacheTTL = time.Minute })

	first, err := c.FetchActivity(context.Background(), testAddress, 7, models.ActivityTransactions)
	require.NoError(t, err)
	second, err := c.FetchActivity(context.Background(), "0xABC0000000000000000000000000000000000001", 7, models.ActivityTransactions)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, fake.called(actionTxList))

	_, err = c.FetchActivity(context.Background(), testAddress, 14, models.ActivityTransactions)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.called(actionTxList))
}

func TestFetchActivityDegradedResultNotCached(t *testing.T) {
	fake := &fakeExplorer{handler: func(string, map[string]string) string {
		return `{"status":"0","message":"NOTOK","result":""}`
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.CacheTTL = time.Minute })

	for i := 0; i < 2; i++ {
		_, err := c.FetchActivity(context.Background(), testAddress, 7, models.ActivityTransactions)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, fake.called(actionBlockByTime))
}

func idleWallet(action string, q map[string]string) string {
	if action == actionTxList {
		return `{"status":"0","message":"No transactions found","result":[]}`
	}
	return okExplorer(action, q)
}

// failureCount scrapes the upstream failure counter for one action.
func failureCount(t *testing.T, action string) float64 {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	prefix := `walletreel_explorer_upstream_failures_total{action="` + action + `"} `
	for _, line := range strings.Split(rr.Body.String(), "\n") {
		if strings.HasPrefix(line, prefix) {
			v, err := strconv.ParseFloat(strings.TrimPrefix(line, prefix), 64)
			require.NoError(t, err)
			return v
		}
	}
	return 0
}

func TestFetchActivityIdleWallet(t *testing.T) {
	for _, strict := range []bool{false, true} {
		t.Run(fmt.Sprintf("strict=%v", strict), func(t *testing.T) {
			fake := &fakeExplorer{handler: idleWallet}
			srv := httptest.NewServer(fake)
			defer srv.Close()

			c := newTestClient(t, srv.URL, func(cfg *Config) {
				cfg.Strict = strict
				cfg.CacheTTL = time.Minute
			})

			before := failureCount(t, actionTxList)
			activity, err := c.FetchActivity(context.Background(), testAddress, 7, models.ActivityTransactions)
			require.NoError(t, err)
			assert.NotNil(t, activity.Transactions)
			assert.Empty(t, activity.Transactions)
			assert.Equal(t, "1500000000000000000", activity.Balance)
			assert.Equal(t, before, failureCount(t, actionTxList))

			cached, err := c.FetchActivity(context.Background(), testAddress, 7, models.ActivityTransactions)
			require.NoError(t, err)
			assert.Same(t, activity, cached)
			assert.Equal(t, 1, fake.called(actionTxList))
		})
	}
}

func TestStatusZeroWithTextResultIsStillAFailure(t *testing.T) {
	fake := &fakeExplorer{handler: func(action string, q map[string]string) string {
		if action == actionTxList {
			return `{"status":"0","message":"No transactions found","result":"Invalid address format"}`
		}
		return okExplorer(action, q)
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.Strict = true })
	_, err := c.FetchActivity(context.Background(), testAddress, 7, models.ActivityTransactions)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, actionTxList, upstream.Action)
}

func TestActionFor(t *testing.T) {
	assert.Equal(t, "txlist", ActionFor(models.ActivityTransactions))
	assert.Equal(t, "tokentx", ActionFor(models.ActivityTokens))
	assert.Equal(t, "tokennfttx", ActionFor(models.ActivityNFT))
	assert.Equal(t, "txlist", ActionFor(""))
}
