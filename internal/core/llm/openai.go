// Package llm implements the enrichment adapter on top of an
// OpenAI-compatible chat completion API. Every response is treated as
// untrusted input: it is parsed leniently here and re-validated by callers.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/core/ports"
	"github.com/lueurxax/supplier-catalog/internal/platform/config"
	"github.com/lueurxax/supplier-catalog/internal/platform/observability"
	"github.com/lueurxax/supplier-catalog/internal/platform/retry"
)

var _ ports.Enricher = (*Client)(nil)

// ErrNoResultsExtracted indicates no groups could be extracted from the response.
var ErrNoResultsExtracted = errors.New("failed to extract any results from LLM response")

// Client is the OpenAI-backed enrichment adapter.
type Client struct {
	cfg         config.LLMConfig
	client      *openai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
	retry       retry.Config

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

// New creates the adapter. LLM_BASE_URL points it at any OpenAI-compatible endpoint.
func New(cfg config.LLMConfig, logger *zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: LLM_API_KEY", apperrors.ErrMissingCredentials)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}

	return &Client{
		cfg:         cfg,
		client:      openai.NewClientWithConfig(clientCfg),
		logger:      logger,
		rateLimiter: rate.NewLimiter(limit, rateLimiterBurst),
		retry: retry.Config{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.RetryInitial,
			MaxDelay:     cfg.RetryMax,
			Retryable:    isRetryable,
		},
	}, nil
}

// isRetryable extends the default classifier with OpenAI API status codes.
func isRetryable(err error) bool {
	if retry.IsTransient(err) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retry.IsRetryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retry.IsRetryableStatus(reqErr.HTTPStatusCode)
	}

	return false
}

func (c *Client) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("%w until %v", apperrors.ErrCircuitBreakerOpen, c.circuitOpenUntil)
	}

	return nil
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= circuitBreakerThreshold {
		c.circuitOpenUntil = time.Now().Add(circuitBreakerTimeout)
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.circuitOpenUntil).
			Msg("Circuit breaker opened")
	}
}

func (c *Client) resolveModel(model string) string {
	if model == "" {
		model = c.cfg.Model
	}

	if model == "" {
		model = defaultModel
	}

	return model
}

// complete runs one chat completion with retries and returns the raw content.
func (c *Client) complete(ctx context.Context, operation, model string, parts []openai.ChatMessagePart) (string, error) {
	model = c.resolveModel(model)
	start := time.Now()
	attempt := 0

	content, err := retry.DoValue(ctx, c.retry, func(ctx context.Context) (string, error) {
		attempt++
		if attempt > 1 {
			observability.EnrichmentRetries.WithLabelValues(operation).Inc()
			c.logger.Debug().Str(logKeyOperation, operation).Int(logKeyAttempt, attempt).Msg("retrying enrichment request")
		}

		return c.completeOnce(ctx, model, parts)
	})

	status := observability.StatusSuccess
	if err != nil {
		status = observability.StatusError
	}

	observability.EnrichmentDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())

	if err != nil {
		return "", fmt.Errorf("%s enrichment: %w", operation, err)
	}

	c.logger.Debug().Str(logKeyOperation, operation).Str(logKeyModel, model).Str(logKeyContent, truncate(content, truncateLengthShort)).Msg("LLM response")

	return content, nil
}

func (c *Client) completeOnce(ctx context.Context, model string, parts []openai.ChatMessagePart) (string, error) {
	if err := c.checkCircuit(); err != nil {
		return "", err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf(errRateLimiter, err)
	}

	callCtx := ctx

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		c.recordFailure()

		return "", fmt.Errorf(errOpenAIChatCompletion, err)
	}

	c.recordSuccess()

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", apperrors.ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

func textParts(prompt string) []openai.ChatMessagePart {
	return []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: prompt,
		},
	}
}

type groupResult struct {
	GroupID        string         `json:"group_id"`
	MessageIDs     stringList     `json:"message_ids"`
	ProductContext string         `json:"product_context"`
	Confidence     flexibleNumber `json:"confidence"`
}

// GroupMessages asks the model to partition msgs into product groups.
func (c *Client) GroupMessages(ctx context.Context, msgs []domain.ChatMessage) ([]domain.ExternalGroup, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	content, err := c.complete(ctx, OperationGroup, "", textParts(buildGroupingPrompt(msgs)))
	if err != nil {
		return nil, err
	}

	results, err := parseGroups(extractJSON(content))
	if err != nil {
		return nil, err
	}

	groups := make([]domain.ExternalGroup, 0, len(results))

	for _, r := range results {
		if len(r.MessageIDs) == 0 {
			continue
		}

		groups = append(groups, domain.ExternalGroup{
			GroupID:    strings.TrimSpace(r.GroupID),
			MessageIDs: []string(r.MessageIDs),
			Context:    strings.TrimSpace(r.ProductContext),
			Confidence: float64(r.Confidence),
		})
	}

	c.logger.Debug().Int(logKeyCount, len(groups)).Msg("LLM grouping parsed")

	return groups, nil
}

// parseGroups accepts {"groups": [...]}, a bare array, or the first array
// found in any object key. An explicit empty "groups" array is a valid answer.
func parseGroups(content string) ([]groupResult, error) {
	var wrapper struct {
		Groups *[]groupResult `json:"groups"`
	}

	if err := json.Unmarshal([]byte(content), &wrapper); err == nil && wrapper.Groups != nil {
		return *wrapper.Groups, nil
	}

	var results []groupResult
	if err := json.Unmarshal([]byte(content), &results); err == nil {
		return results, nil
	}

	if results := tryFindArrayInJSON(content); len(results) > 0 {
		return results, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNoResultsExtracted, truncate(content, truncateLengthShort))
}

func tryFindArrayInJSON(content string) []groupResult {
	var raw map[string]json.RawMessage

	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil
	}

	for _, v := range raw {
		var results []groupResult
		if err := json.Unmarshal(v, &results); err == nil && len(results) > 0 {
			return results
		}
	}

	return nil
}

type textResult struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Price        flexibleNumber `json:"price"`
	Currency     string         `json:"currency"`
	Sizes        stringList     `json:"sizes"`
	Material     string         `json:"material"`
	Gender       string         `json:"gender"`
	Season       string         `json:"season"`
	CategoryID   stringList     `json:"category_id"`
	CategoryName string         `json:"category_name"`
}

// AnalyzeText extracts product attributes from a group's descriptive text.
func (c *Client) AnalyzeText(ctx context.Context, req domain.TextAnalysisRequest) (domain.TextAttributes, error) {
	content, err := c.complete(ctx, OperationText, "", textParts(buildTextPrompt(req)))
	if err != nil {
		return domain.TextAttributes{}, err
	}

	var res textResult
	if err := json.Unmarshal([]byte(extractJSON(content)), &res); err != nil {
		return domain.TextAttributes{}, fmt.Errorf(errParseResponse, errors.Join(apperrors.ErrMalformedResponse, err))
	}

	return domain.TextAttributes{
		Name:         strings.TrimSpace(res.Name),
		Description:  strings.TrimSpace(res.Description),
		Price:        float64(res.Price),
		Currency:     strings.ToUpper(strings.TrimSpace(res.Currency)),
		Sizes:        []string(res.Sizes),
		Material:     strings.TrimSpace(res.Material),
		Gender:       normalizeEnum(res.Gender),
		Season:       normalizeEnum(res.Season),
		CategoryID:   firstOf(res.CategoryID),
		CategoryName: strings.TrimSpace(res.CategoryName),
	}, nil
}

type imageResult struct {
	Color        string     `json:"color"`
	CategoryID   stringList `json:"category_id"`
	CategoryName string     `json:"category_name"`
	Gender       string     `json:"gender"`
	Season       string     `json:"season"`
}

// AnalyzeImage extracts color and category hints from one product image.
func (c *Client) AnalyzeImage(ctx context.Context, req domain.ImageAnalysisRequest) (domain.ImageAttributes, error) {
	if len(req.Image) == 0 {
		return domain.ImageAttributes{}, fmt.Errorf("%w: empty image", apperrors.ErrInvalidInput)
	}

	mimeType := req.ContentType
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(req.Image)
	}

	parts := textParts(buildImagePrompt(req))
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL:    fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(req.Image)),
			Detail: openai.ImageURLDetailLow,
		},
	})

	content, err := c.complete(ctx, OperationImage, c.cfg.VisionModel, parts)
	if err != nil {
		return domain.ImageAttributes{}, err
	}

	var res imageResult
	if err := json.Unmarshal([]byte(extractJSON(content)), &res); err != nil {
		return domain.ImageAttributes{}, fmt.Errorf(errParseResponse, errors.Join(apperrors.ErrMalformedResponse, err))
	}

	return domain.ImageAttributes{
		Color:        strings.ToLower(strings.TrimSpace(res.Color)),
		CategoryID:   firstOf(res.CategoryID),
		CategoryName: strings.TrimSpace(res.CategoryName),
		Gender:       normalizeEnum(res.Gender),
		Season:       normalizeEnum(res.Season),
	}, nil
}

func normalizeEnum(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

func firstOf(values stringList) string {
	if len(values) == 0 {
		return ""
	}

	return values[0]
}
