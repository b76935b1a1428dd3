package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	validator "github.com/kaptinlin/jsonschema"
	"github.com/pkg/errors"
)

// llmReport is the shape the model must answer with.
type llmReport struct {
	Intro   string      `json:"intro" jsonschema_description:"Opening narration for the video, one or two sentences."`
	Outro   string      `json:"outro" jsonschema_description:"Closing narration for the video, one or two sentences."`
	Periods []llmPeriod `json:"periods" jsonschema_description:"Chronological time periods covering the wallet activity."`
}

type llmPeriod struct {
	Period            string   `json:"period" jsonschema_description:"Short label for the period, for example a date range."`
	Narrative         string   `json:"narrative" jsonschema_description:"Narration for this period's scene."`
	Highlights        []string `json:"highlights" jsonschema_description:"Two to four short highlight lines."`
	TransactionHashes []string `json:"transaction_hashes" jsonschema_description:"Hashes of the transactions that belong to this period."`
}

func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// responseSchema pairs the reflected schema sent to the model with a compiled
// validator for its answer.
type responseSchema struct {
	reflected *jsonschema.Schema
	compiled  *validator.Schema
}

func newResponseSchema() (*responseSchema, error) {
	reflected := generateSchema[llmReport]()

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, errors.Wrap(err, "marshal report schema")
	}

	compiled, err := validator.NewCompiler().Compile(raw)
	if err != nil {
		return nil, errors.Wrap(err, "compile report schema")
	}

	return &responseSchema{reflected: reflected, compiled: compiled}, nil
}

// decode validates raw against the schema and unmarshals it.
func (s *responseSchema) decode(raw string) (*llmReport, error) {
	var instance interface{}
	if err := json.Unmarshal([]byte(raw), &instance); err != nil {
		return nil, errors.Wrap(err, "model response is not JSON")
	}

	result := s.compiled.Validate(instance)
	if !result.IsValid() {
		messages := make([]string, 0, len(result.Errors))
		for field, evalErr := range result.Errors {
			messages = append(messages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		sort.Strings(messages)
		return nil, errors.Errorf("model response failed schema validation: %s", strings.Join(messages, "; "))
	}

	var out llmReport
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errors.Wrap(err, "decode model response")
	}
	return &out, nil
}
