package skinanalysis

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dermashop/dermashop-backend/pkg/config"
	"github.com/go-resty/resty/v2"
)

const predictPath = "/predict"

// Prediction is one candidate condition returned by the model.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// InferenceResult is the body of a successful predict call.
type InferenceResult struct {
	Label       string       `json:"label"`
	Confidence  float64      `json:"confidence"`
	Predictions []Prediction `json:"predictions"`
}

// Predictor classifies a skin image.
type Predictor interface {
	Predict(ctx context.Context, filename, contentType string, image []byte) (*InferenceResult, error)
}

// InferenceClient calls the external model service over HTTP.
type InferenceClient struct {
	http *resty.Client
}

func NewInferenceClient(cfg config.InferenceConfig) (*InferenceClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("inference base url required")
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}
	return &InferenceClient{http: client}, nil
}

// Predict uploads the image as the multipart field "file".
func (c *InferenceClient) Predict(ctx context.Context, filename, contentType string, image []byte) (*InferenceResult, error) {
	var result InferenceResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", filename, contentType, bytes.NewReader(image)).
		SetResult(&result).
		Post(predictPath)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inference returned status %d: %s", resp.StatusCode(), truncate(resp.String(), 256))
	}
	if strings.TrimSpace(result.Label) == "" {
		return nil, fmt.Errorf("inference response missing label")
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, fmt.Errorf("inference confidence %v out of range", result.Confidence)
	}
	return &result, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
