package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrEmptyCompletion is returned when the service produced no document
var ErrEmptyCompletion = errors.New("completion contained no applet")

// Config defines the external service
type Config struct {
	BaseURL            string
	APIKey             string
	ChatModel          string
	TranscriptionModel string
	Temperature        float64
	MaxTokens          int
	Timeout            time.Duration
}

// DefaultConfig returns settings for a Groq-hosted service
func DefaultConfig() Config {
	return Config{
		BaseURL:            "https://api.groq.com/openai/v1",
		ChatModel:          "llama-3.1-70b-versatile",
		TranscriptionModel: "whisper-large-v3",
		Temperature:        0.5,
		MaxTokens:          2170,
		Timeout:            2 * time.Minute,
	}
}

// HTTP generates applets through transcription and chat completion calls
type HTTP struct {
	client *resty.Client
	cfg    Config
	logger *zap.Logger
}

type transcription struct {
	Text string `json:"text"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewHTTP creates a generator for the configured service
func NewHTTP(cfg Config, logger *zap.Logger) *HTTP {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = defaults.ChatModel
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = defaults.TranscriptionModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &HTTP{client: client, cfg: cfg, logger: logger}
}

// Generate transcribes the recording and asks for a new or changed applet
func (g *HTTP) Generate(ctx context.Context, req Request) (*Result, error) {
	text, err := g.transcribe(ctx, req)
	if err != nil {
		return nil, err
	}
	g.logger.Info("Request transcribed", zap.Int("chars", len(text)), zap.Bool("change", req.IsChange()))

	completion, err := g.complete(ctx, Prompt(text, req))
	if err != nil {
		return nil, err
	}

	html, storage := Extract(completion)
	if html == "" {
		g.logger.Warn("Completion carried no HTML section")
	}
	if storage == "" {
		g.logger.Debug("Completion carried no storage section")
	}
	if html == "" && storage == "" {
		return &Result{Transcription: text}, ErrEmptyCompletion
	}
	return &Result{Transcription: text, HTML: html, Storage: storage}, nil
}

func (g *HTTP) transcribe(ctx context.Context, req Request) (string, error) {
	name := req.Filename
	if name == "" {
		name = "recording.webm"
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var out transcription
	resp, err := g.client.R().
		SetContext(ctx).
		SetMultipartField("file", name, contentType, bytes.NewReader(req.Audio)).
		SetFormData(map[string]string{
			"model":           g.cfg.TranscriptionModel,
			"response_format": "verbose_json",
		}).
		SetResult(&out).
		Post("/audio/transcriptions")
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("transcribe: HTTP %d", resp.StatusCode())
	}
	return out.Text, nil
}

func (g *HTTP) complete(ctx context.Context, prompt string) (string, error) {
	var out chatResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       g.cfg.ChatModel,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			Temperature: g.cfg.Temperature,
			MaxTokens:   g.cfg.MaxTokens,
		}).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("complete: HTTP %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("complete: %w", ErrEmptyCompletion)
	}
	return out.Choices[0].Message.Content, nil
}
