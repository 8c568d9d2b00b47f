// Package batch pulls offset pages of unprocessed messages for one run and
// widens each page so a sender's sequence is not torn at the page boundary.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	"github.com/lueurxax/supplier-catalog/internal/core/ports"
)

const (
	defaultPageSize        = 100
	defaultLookback        = 48 * time.Hour
	defaultContinuationGap = 5 * time.Minute

	logKeyRunID      = "run_id"
	logKeyOffset     = "offset"
	logKeyPage       = "page"
	logKeyExtended   = "extended"
	logKeyDuplicates = "duplicates"
)

// Config configures the extender for one run.
type Config struct {
	PageSize        int
	Lookback        time.Duration
	ContinuationGap time.Duration
	Source          domain.SourceFamily
	// ChatID restricts the run to one chat when set.
	ChatID string
}

func (c Config) normalized() Config {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}

	if c.Lookback <= 0 {
		c.Lookback = defaultLookback
	}

	if c.ContinuationGap <= 0 {
		c.ContinuationGap = defaultContinuationGap
	}

	if c.Source == "" {
		c.Source = domain.SourceAll
	}

	return c
}

// Page is one fetched batch.
type Page struct {
	// Messages are new to this run: the page plus its continuation.
	Messages []domain.ChatMessage
	// NextOffset advances by the page size only, never by the continuation.
	NextOffset int
	// Exhausted is set when the store returned a short page.
	Exhausted bool
	// Extended counts continuation messages folded into this page.
	Extended int
	// Duplicates counts messages dropped because the run already saw them.
	Duplicates int
}

// Extender fetches pages of one run. It is not safe for concurrent use.
type Extender struct {
	store  ports.MessageStore
	runID  string
	cfg    Config
	since  time.Time
	seen   map[string]struct{}
	logger *zerolog.Logger
}

// NewExtender creates an extender for runID. The lookback window is fixed at
// creation so offsets stay stable for the whole run.
func NewExtender(store ports.MessageStore, runID string, cfg Config, now time.Time, logger *zerolog.Logger) *Extender {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	cfg = cfg.normalized()

	return &Extender{
		store:  store,
		runID:  runID,
		cfg:    cfg,
		since:  now.Add(-cfg.Lookback),
		seen:   make(map[string]struct{}),
		logger: logger,
	}
}

// Since returns the lower createdAt bound of the run.
func (e *Extender) Since() time.Time {
	return e.since
}

// PageSize returns the effective page size.
func (e *Extender) PageSize() int {
	return e.cfg.PageSize
}

// Fetch returns the page at offset. Chaining calls through NextOffset never
// returns the same message twice.
func (e *Extender) Fetch(ctx context.Context, offset int) (Page, error) {
	raw, err := e.store.FetchPage(ctx, ports.PageQuery{
		RunID:  e.runID,
		Source: e.cfg.Source,
		ChatID: e.cfg.ChatID,
		Since:  e.since,
		Offset: offset,
		Limit:  e.cfg.PageSize,
	})
	if err != nil {
		return Page{}, fmt.Errorf("fetch page at offset %d: %w", offset, err)
	}

	page := Page{
		NextOffset: offset + e.cfg.PageSize,
		Exhausted:  len(raw) < e.cfg.PageSize,
	}

	for _, m := range raw {
		if e.markSeen(m.ID) {
			page.Messages = append(page.Messages, m)
		} else {
			page.Duplicates++
		}
	}

	if len(raw) > 0 {
		continuation, err := e.continuation(ctx, raw[len(raw)-1])
		if err != nil {
			return Page{}, err
		}

		for _, m := range continuation {
			if e.markSeen(m.ID) {
				page.Messages = append(page.Messages, m)
				page.Extended++
			} else {
				page.Duplicates++
			}
		}
	}

	e.logger.Debug().
		Str(logKeyRunID, e.runID).
		Int(logKeyOffset, offset).
		Int(logKeyPage, len(raw)).
		Int(logKeyExtended, page.Extended).
		Int(logKeyDuplicates, page.Duplicates).
		Msg("batch page fetched")

	return page, nil
}

// continuation returns the unprocessed messages of last's sender and chat
// that follow it with every gap within the continuation window.
func (e *Extender) continuation(ctx context.Context, last domain.ChatMessage) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage

	prev := last

	for {
		next, err := e.store.FetchContinuation(ctx, ports.ContinuationQuery{
			Source:   last.Source,
			ChatID:   last.ChatID,
			SenderID: last.SenderID,
			After:    prev.Timestamp,
			AfterID:  prev.ID,
			Since:    e.since,
			Limit:    e.cfg.PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch continuation of %s: %w", last.ID, err)
		}

		for _, m := range next {
			if m.Timestamp.Sub(prev.Timestamp) > e.cfg.ContinuationGap {
				return out, nil
			}

			out = append(out, m)
			prev = m
		}

		if len(next) < e.cfg.PageSize {
			return out, nil
		}
	}
}

func (e *Extender) markSeen(id string) bool {
	if _, ok := e.seen[id]; ok {
		return false
	}

	e.seen[id] = struct{}{}

	return true
}
