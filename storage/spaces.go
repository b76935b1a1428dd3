// Package storage archives render payloads in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/walletreel/walletreel/errors"
)

type SpacesConfig struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string
	Bucket    string
}

type SpacesClient struct {
	client *s3.Client
	bucket string
}

// archived wraps a payload with the time it was stored.
type archived struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewSpacesClient(ctx context.Context, cfg SpacesConfig) (*SpacesClient, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %v", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &SpacesClient{client: client, bucket: cfg.Bucket}, nil
}

func payloadKey(id string) string {
	return fmt.Sprintf("renders/%s.json", id)
}

// SaveRenderPayload stores payload under renders/<id>.json and returns the key.
func (s *SpacesClient) SaveRenderPayload(ctx context.Context, id string, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %v", err)
	}

	data, err := json.Marshal(archived{ID: id, Payload: raw, Timestamp: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %v", err)
	}

	key := payloadKey(id)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to save to Spaces: %w", err)
	}

	return key, nil
}

// LoadRenderPayload decodes the payload archived for id into out.
func (s *SpacesClient) LoadRenderPayload(ctx context.Context, id string, out interface{}) error {
	const op = "SpacesClient.LoadRenderPayload"

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(payloadKey(id)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if stderrors.As(err, &missing) {
			return errors.NotFound(op, err, "Render payload not found")
		}
		return fmt.Errorf("failed to get from Spaces: %w", err)
	}
	defer result.Body.Close()

	var data archived
	if err := json.NewDecoder(result.Body).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode data: %v", err)
	}

	if err := json.Unmarshal(data.Payload, out); err != nil {
		return fmt.Errorf("failed to decode payload: %v", err)
	}
	return nil
}
