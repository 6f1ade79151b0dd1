package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/robalobadob/escaperoom/internal/metrics"
)

const defaultTimeout = 90 * time.Second

// ChatConfig configures a chat-completions client. The same client serves
// OpenAI and any OpenAI-compatible endpoint (Gemini's included) via BaseURL.
type ChatConfig struct {
	Provider string // label for logs and metrics
	APIKey   string
	BaseURL  string
	Models   []string // tried in order
	Timeout  time.Duration
}

// ChatClient implements TextGenerator with model fallback.
type ChatClient struct {
	provider string
	client   *openai.Client
	models   []string
	timeout  time.Duration
}

// NewChatClient validates cfg and builds the client.
func NewChatClient(cfg ChatConfig) (*ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai: API key is required")
	}
	models := nonEmpty(cfg.Models)
	if len(models) == 0 {
		return nil, errors.New("ai: at least one text model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &ChatClient{
		provider: cfg.Provider,
		client:   openai.NewClientWithConfig(oc),
		models:   models,
		timeout:  cfg.Timeout,
	}, nil
}

// Complete tries each model in order and returns the first accepted answer.
func (c *ChatClient) Complete(ctx context.Context, req TextRequest) (string, error) {
	var lastErr error
	for _, model := range c.models {
		text, err := c.completeOnce(ctx, model, req)
		if err == nil && req.Accept != nil {
			err = req.Accept(text)
		}
		if err == nil {
			return text, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("provider", c.provider).Str("model", model).Msg("text model failed, trying next")
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%s text: %w: %v", c.provider, ErrAllModelsFailed, lastErr)
}

func (c *ChatClient) completeOnce(ctx context.Context, model string, req TextRequest) (text string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	defer func() { metrics.ObserveAI(c.provider, "text", model, start, err) }()

	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	creq := openai.ChatCompletionRequest{Model: model, Messages: msgs}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// DalleConfig configures the OpenAI images client.
type DalleConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
	Timeout time.Duration
}

// DalleClient implements ImageGenerator on the OpenAI images endpoint.
type DalleClient struct {
	client  *openai.Client
	model   string
	size    string
	timeout time.Duration
}

// NewDalleClient builds an images client (DALL-E 3, 1024x1024 by default).
func NewDalleClient(cfg DalleConfig) (*DalleClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.CreateImageModelDallE3
	}
	if cfg.Size == "" {
		cfg.Size = openai.CreateImageSize1024x1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &DalleClient{client: openai.NewClientWithConfig(oc), model: cfg.Model, size: cfg.Size, timeout: cfg.Timeout}, nil
}

// Generate requests one base64 image and decodes it.
func (d *DalleClient) Generate(ctx context.Context, prompt string) (img image.Image, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	start := time.Now()
	defer func() { metrics.ObserveAI("openai", "image", d.model, start, err) }()

	resp, err := d.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          d.model,
		Size:           d.size,
		Quality:        openai.CreateImageQualityStandard,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("openai image: %w", ErrEmptyResponse)
	}
	return decodeBase64Image(resp.Data[0].B64JSON)
}

func decodeBase64Image(b64 string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func nonEmpty(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
