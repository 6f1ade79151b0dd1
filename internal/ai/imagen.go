package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/escaperoom/internal/metrics"
)

// ImagenConfig configures the Google Imagen predict client.
type ImagenConfig struct {
	APIKey     string
	BaseURL    string // e.g. https://generativelanguage.googleapis.com/v1beta
	Models     []string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ImagenClient implements ImageGenerator on the Imagen ":predict" REST endpoint.
type ImagenClient struct {
	apiKey  string
	baseURL string
	models  []string
	http    *http.Client
}

// NewImagenClient validates cfg and builds the client.
func NewImagenClient(cfg ImagenConfig) (*ImagenClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai: API key is required")
	}
	models := nonEmpty(cfg.Models)
	if len(models) == 0 {
		return nil, errors.New("ai: at least one image model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &ImagenClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		models:  models,
		http:    hc,
	}, nil
}

type imagenRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenInstance struct {
	Prompt string `json:"prompt"`
}

type imagenParameters struct {
	SampleCount  int    `json:"sampleCount"`
	OutputFormat string `json:"outputFormat"`
}

type imagenResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		Image              *struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
		} `json:"image"`
	} `json:"predictions"`
}

// Generate tries each Imagen model in order and returns the first image.
func (c *ImagenClient) Generate(ctx context.Context, prompt string) (image.Image, error) {
	var lastErr error
	for _, model := range c.models {
		img, err := c.predict(ctx, model, prompt)
		if err == nil {
			return img, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("model", model).Msg("imagen model failed, trying next")
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("google image: %w: %v", ErrAllModelsFailed, lastErr)
}

func (c *ImagenClient) predict(ctx context.Context, model, prompt string) (img image.Image, err error) {
	start := time.Now()
	defer func() { metrics.ObserveAI("google", "image", model, start, err) }()

	body, err := json.Marshal(imagenRequest{
		Instances:  []imagenInstance{{Prompt: prompt}},
		Parameters: imagenParameters{SampleCount: 1, OutputFormat: "image/png"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:predict?key=%s", c.baseURL, url.PathEscape(model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var out imagenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Predictions) == 0 {
		return nil, ErrEmptyResponse
	}
	p := out.Predictions[0]
	b64 := p.BytesBase64Encoded
	if b64 == "" && p.Image != nil {
		b64 = p.Image.BytesBase64Encoded
	}
	if b64 == "" {
		return nil, ErrEmptyResponse
	}
	return decodeBase64Image(b64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
