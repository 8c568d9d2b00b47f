package mocks

import (
	"context"
	"sync"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	"github.com/lueurxax/supplier-catalog/internal/core/ports"
)

var _ ports.Enricher = (*Enricher)(nil)

// Enricher is a scripted ports.Enricher that records its calls.
type Enricher struct {
	mu sync.Mutex

	textCalls  int
	imageCalls int
	groupCalls int

	// GroupMessagesFn allows overriding GroupMessages behavior.
	GroupMessagesFn func(ctx context.Context, msgs []domain.ChatMessage) ([]domain.ExternalGroup, error)

	// AnalyzeTextFn allows overriding AnalyzeText behavior.
	AnalyzeTextFn func(ctx context.Context, req domain.TextAnalysisRequest) (domain.TextAttributes, error)

	// AnalyzeImageFn allows overriding AnalyzeImage behavior.
	AnalyzeImageFn func(ctx context.Context, req domain.ImageAnalysisRequest) (domain.ImageAttributes, error)
}

// NewEnricher creates an enricher that returns empty results.
func NewEnricher() *Enricher {
	return &Enricher{}
}

// GroupMessages returns the scripted grouping.
func (e *Enricher) GroupMessages(ctx context.Context, msgs []domain.ChatMessage) ([]domain.ExternalGroup, error) {
	e.mu.Lock()
	e.groupCalls++
	e.mu.Unlock()

	if e.GroupMessagesFn != nil {
		return e.GroupMessagesFn(ctx, msgs)
	}

	return nil, nil
}

// AnalyzeText returns the scripted text attributes.
func (e *Enricher) AnalyzeText(ctx context.Context, req domain.TextAnalysisRequest) (domain.TextAttributes, error) {
	e.mu.Lock()
	e.textCalls++
	e.mu.Unlock()

	if e.AnalyzeTextFn != nil {
		return e.AnalyzeTextFn(ctx, req)
	}

	return domain.TextAttributes{}, nil
}

// AnalyzeImage returns the scripted image attributes.
func (e *Enricher) AnalyzeImage(ctx context.Context, req domain.ImageAnalysisRequest) (domain.ImageAttributes, error) {
	e.mu.Lock()
	e.imageCalls++
	e.mu.Unlock()

	if e.AnalyzeImageFn != nil {
		return e.AnalyzeImageFn(ctx, req)
	}

	return domain.ImageAttributes{}, nil
}

// Calls returns the number of grouping, text and image calls.
func (e *Enricher) Calls() (group, text, image int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.groupCalls, e.textCalls, e.imageCalls
}
