package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/walletreel/walletreel/models"
)

const systemInstruction = `You are the narrator of a short video that retells the on-chain activity of a crypto wallet.
You receive the user's request and the wallet's transactions as JSON.
Split the activity into %d chronological periods of similar length. For every period write a short narrative,
two to four highlights, and list the hashes of the transactions that belong to it. Every hash must come from the input.
Also write an intro and an outro for the video. Keep the tone vivid but factual and never invent amounts.`

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *logrus.Logger
}

// OpenAIGenerator asks a chat completion model for a schema-constrained report.
type OpenAIGenerator struct {
	client openai.Client
	model  string
	schema *responseSchema
	logger *logrus.Logger
}

func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4oMini)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	schema, err := newResponseSchema()
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		schema: schema,
		logger: cfg.Logger,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, in Input) (*models.Report, error) {
	periods := in.Periods
	if periods < 1 {
		periods = 1
	}

	txJSON, err := json.Marshal(in.Transactions)
	if err != nil {
		return nil, errors.Wrap(err, "marshal transactions")
	}

	user := fmt.Sprintf("Wallet: %s\nRequest: %s\nTransactions:\n%s", in.Owner, strings.TrimSpace(in.Prompt), txJSON)

	logger := g.logger.WithFields(logrus.Fields{
		"model":        g.model,
		"periods":      periods,
		"transactions": len(in.Transactions),
	})
	logger.Debug("Requesting report from model")

	start := time.Now()
	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(systemInstruction, periods)),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "wallet_report",
					Description: openai.String("Period-partitioned wallet activity report"),
					Schema:      g.schema.reflected,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "chat completion request")
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("model returned no choices")
	}

	answer, err := g.schema.decode(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	report := assemble(in, answer)
	logger.WithFields(logrus.Fields{
		"duration":       time.Since(start),
		"report_periods": len(report.Periods),
		"completion_id":  completion.ID,
	}).Info("Model report generated")

	return report, nil
}

// assemble maps the model's hash attribution back onto the input
// transactions. Unknown or repeated hashes are ignored and statistics are
// always recomputed from the attributed transactions.
func assemble(in Input, answer *llmReport) *models.Report {
	byHash := make(map[string]models.Transaction, len(in.Transactions))
	for _, tx := range in.Transactions {
		key := strings.ToLower(tx.Hash)
		if _, ok := byHash[key]; !ok {
			byHash[key] = tx
		}
	}

	used := make(map[string]struct{}, len(byHash))
	periods := make([]models.PeriodReport, 0, len(answer.Periods))
	for _, p := range answer.Periods {
		txs := make([]models.Transaction, 0, len(p.TransactionHashes))
		for _, hash := range p.TransactionHashes {
			key := strings.ToLower(strings.TrimSpace(hash))
			tx, ok := byHash[key]
			if !ok {
				continue
			}
			if _, dup := used[key]; dup {
				continue
			}
			used[key] = struct{}{}
			txs = append(txs, tx)
		}

		start, end := timeBounds(txs)
		highlights := p.Highlights
		if highlights == nil {
			highlights = []string{}
		}
		periods = append(periods, models.PeriodReport{
			Period:       p.Period,
			StartTime:    start,
			EndTime:      end,
			Narrative:    p.Narrative,
			Highlights:   highlights,
			Stats:        ComputeStats(in.Owner, txs),
			Transactions: txs,
		})
	}

	return &models.Report{
		Intro:   answer.Intro,
		Outro:   answer.Outro,
		Periods: periods,
	}
}

func timeBounds(txs []models.Transaction) (int64, int64) {
	if len(txs) == 0 {
		return 0, 0
	}
	lo, hi := txs[0].Unix(), txs[0].Unix()
	for _, tx := range txs[1:] {
		if ts := tx.Unix(); ts < lo {
			lo = ts
		} else if ts > hi {
			hi = ts
		}
	}
	return lo, hi
}
