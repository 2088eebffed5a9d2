// Package llm provides completion generation via langchaingo.
//
// This package wraps langchaingo chat models behind a single
// prompt-in, completion-out call, which is the shape the summarizer
// factory consumes. It supports OpenAI (and OpenAI-compatible servers)
// and Ollama.
//
// Example usage with OpenAI:
//
//	config := llm.Config{
//	    Provider: llm.ProviderOpenAI,
//	    Model:    "gpt-4o-mini",
//	    APIKey:   os.Getenv("OPENAI_API_KEY"),
//	}
//	service, err := llm.New(config)
//	if err != nil {
//	    // Handle error
//	}
//	summary, err := service.Complete(ctx, prompt)
//
// Example usage with Ollama:
//
//	config := llm.Config{
//	    Provider: llm.ProviderOllama,
//	    Model:    "llama3.1",
//	    BaseURL:  "http://localhost:11434",
//	}
//	service, err := llm.New(config)
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

var (
	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyPrompt indicates an empty prompt
	ErrEmptyPrompt = errors.New("empty prompt")
)

// Config holds configuration for the completion service.
type Config struct {
	// Provider selects the backend, ProviderOpenAI or ProviderOllama
	Provider string

	// Model is the completion model to use
	// For OpenAI: gpt-4o-mini, gpt-4o
	// For Ollama: llama3.1, mistral
	Model string

	// BaseURL overrides the provider endpoint. Any OpenAI-compatible
	// server works with ProviderOpenAI.
	BaseURL string

	// APIKey is the API key (required for OpenAI, unused for Ollama)
	APIKey string

	// Temperature controls sampling; 0 keeps summaries reproducible
	Temperature float64

	// MaxTokens bounds the completion; 0 leaves the provider default
	MaxTokens int
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderOllama:
	case "":
		return fmt.Errorf("%w: provider required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature %v outside [0, 2]", ErrInvalidConfig, c.Temperature)
	}
	return nil
}

// Service generates completions for summarization prompts.
type Service struct {
	model  llms.Model
	config Config
}

// New creates a new completion service with the given configuration.
//
// Returns an error if the configuration is invalid or the provider
// client cannot be constructed. No network traffic happens until
// Complete is called.
func New(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	model, err := newModel(config)
	if err != nil {
		return nil, err
	}

	return &Service{
		model:  model,
		config: config,
	}, nil
}

func newModel(config Config) (llms.Model, error) {
	if config.Provider == ProviderOllama {
		opts := []ollama.Option{
			ollama.WithModel(config.Model),
		}
		if config.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(config.BaseURL))
		}

		model, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating Ollama client: %w", err)
		}
		return model, nil
	}

	apiKey := config.APIKey
	if apiKey == "" {
		// langchaingo requires a token, use placeholder for local
		// OpenAI-compatible servers
		apiKey = "placeholder"
	}

	opts := []openai.Option{
		openai.WithModel(config.Model),
		openai.WithToken(apiKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return model, nil
}

// Model returns the underlying langchaingo model.
//
// This allows the service to be used with other langchaingo components
// that require an llms.Model.
func (s *Service) Model() llms.Model {
	return s.model
}

// Complete sends one prompt and returns the trimmed completion text.
//
// Returns ErrEmptyPrompt if the prompt is empty or whitespace.
func (s *Service) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt cannot be empty", ErrEmptyPrompt)
	}

	opts := []llms.CallOption{
		llms.WithTemperature(s.config.Temperature),
	}
	if s.config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(s.config.MaxTokens))
	}

	completion, err := llms.GenerateFromSinglePrompt(ctx, s.model, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}

	return strings.TrimSpace(completion), nil
}

// CallFunc returns the completion call as a plain function, the shape
// the summarize factory consumes: prompt in, completion out.
func (s *Service) CallFunc() func(context.Context, string) (string, error) {
	return s.Complete
}
