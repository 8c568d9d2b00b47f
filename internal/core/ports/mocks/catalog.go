package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/core/ports"
)

var (
	_ ports.MessageStore  = (*CatalogStore)(nil)
	_ ports.ProductStore  = (*CatalogStore)(nil)
	_ ports.CategoryStore = (*CatalogStore)(nil)
)

type messageState struct {
	msg   domain.ChatMessage
	runID string
}

// CatalogStore is a thread-safe in-memory store of messages, products and
// categories. Drafts claim messages under the same lock, which mirrors the
// single transaction of the PostgreSQL store.
type CatalogStore struct {
	mu         sync.Mutex
	messages   map[string]*messageState
	products   map[string]*domain.Product
	order      map[string]int
	categories []domain.Category
	seq        int
	deleted    []string

	// CreateDraftFn allows overriding CreateDraft behavior.
	CreateDraftFn func(ctx context.Context, p domain.Product, runID string) error

	// UpdateProductFn allows overriding UpdateProduct behavior.
	UpdateProductFn func(ctx context.Context, id string, patch domain.ProductPatch) error

	// AddImageFn allows overriding AddImage behavior.
	AddImageFn func(ctx context.Context, img domain.ProductImage) (domain.ProductImage, error)

	// FetchPageFn allows overriding FetchPage behavior.
	FetchPageFn func(ctx context.Context, q ports.PageQuery) ([]domain.ChatMessage, error)
}

// NewCatalogStore creates an empty catalog store.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		messages: make(map[string]*messageState),
		products: make(map[string]*domain.Product),
		order:    make(map[string]int),
	}
}

// AddMessages seeds messages. CreatedAt defaults to Timestamp.
func (c *CatalogStore) AddMessages(msgs ...domain.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range msgs {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = m.Timestamp
		}

		c.messages[m.ID] = &messageState{msg: m}
	}
}

// Message returns the current state of a message.
func (c *CatalogStore) Message(id string) (domain.ChatMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.messages[id]
	if !ok {
		return domain.ChatMessage{}, false
	}

	return st.msg, true
}

// ProcessedBy returns the run that consumed the message, if any.
func (c *CatalogStore) ProcessedBy(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.messages[id]; ok {
		return st.runID
	}

	return ""
}

// Products returns copies of all stored products ordered by creation.
func (c *CatalogStore) Products() []domain.Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, copyProduct(p))
	}

	sort.Slice(out, func(i, j int) bool { return c.order[out[i].ID] < c.order[out[j].ID] })

	return out
}

// DeletedProducts returns ids of products removed by DeleteDraft or cleanup.
func (c *CatalogStore) DeletedProducts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.deleted...)
}

// SetCategories replaces the category set.
func (c *CatalogStore) SetCategories(cats ...domain.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.categories = append([]domain.Category(nil), cats...)
}

// SeedProduct stores a product directly, bypassing message claims.
func (c *CatalogStore) SeedProduct(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.storeProduct(p)
}

// Reset removes all state.
func (c *CatalogStore) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = make(map[string]*messageState)
	c.products = make(map[string]*domain.Product)
	c.order = make(map[string]int)
	c.categories = nil
	c.deleted = nil
	c.seq = 0
}

// SaveMessage inserts a message unless the id already exists.
func (c *CatalogStore) SaveMessage(_ context.Context, msg domain.ChatMessage) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.messages[msg.ID]; ok {
		return false, nil
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	c.messages[msg.ID] = &messageState{msg: msg}

	return true, nil
}

// FetchPage returns one page of the run's message pool.
func (c *CatalogStore) FetchPage(ctx context.Context, q ports.PageQuery) ([]domain.ChatMessage, error) {
	if c.FetchPageFn != nil {
		return c.FetchPageFn(ctx, q)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var pool []domain.ChatMessage

	for _, st := range c.messages {
		inPool := !st.msg.Processed || (q.RunID != "" && st.runID == q.RunID)
		if !inPool || !c.matches(st.msg, q.Source, q.ChatID, q.Since) {
			continue
		}

		pool = append(pool, st.msg)
	}

	sortMessages(pool)

	if q.Offset >= len(pool) {
		return nil, nil
	}

	pool = pool[q.Offset:]
	if q.Limit > 0 && len(pool) > q.Limit {
		pool = pool[:q.Limit]
	}

	return pool, nil
}

// FetchContinuation returns unprocessed messages after a position in a sender's sequence.
func (c *CatalogStore) FetchContinuation(_ context.Context, q ports.ContinuationQuery) ([]domain.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.ChatMessage

	for _, st := range c.messages {
		m := st.msg
		if m.Processed || m.SenderID != q.SenderID || !c.matches(m, q.Source, q.ChatID, q.Since) {
			continue
		}

		if m.Timestamp.Before(q.After) || (m.Timestamp.Equal(q.After) && m.ID <= q.AfterID) {
			continue
		}

		out = append(out, m)
	}

	sortMessages(out)

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	return out, nil
}

func (c *CatalogStore) matches(m domain.ChatMessage, source domain.SourceFamily, chatID string, since time.Time) bool {
	if !source.Matches(m.Source) {
		return false
	}

	if chatID != "" && m.ChatID != chatID {
		return false
	}

	return since.IsZero() || !m.CreatedAt.Before(since)
}

// MarkSkipped consumes unprocessed ids without a group.
func (c *CatalogStore) MarkSkipped(_ context.Context, runID string, ids []string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64

	for _, id := range domain.SortedIDs(ids) {
		st, ok := c.messages[id]
		if !ok || st.msg.Processed {
			continue
		}

		st.msg.Processed = true
		st.msg.AssignedGroupID = ""
		st.runID = runID
		n++
	}

	return n, nil
}

func (c *CatalogStore) release(ids []string) {
	for _, id := range ids {
		if st, ok := c.messages[id]; ok {
			st.msg.Processed = false
			st.msg.AssignedGroupID = ""
			st.runID = ""
		}
	}
}

// AnyProcessed reports whether any of ids is processed.
func (c *CatalogStore) AnyProcessed(_ context.Context, ids []string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		if st, ok := c.messages[id]; ok && st.msg.Processed {
			return true, nil
		}
	}

	return false, nil
}

// CountBacklog counts unprocessed messages of a source family created since.
func (c *CatalogStore) CountBacklog(_ context.Context, source domain.SourceFamily, since time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0

	for _, st := range c.messages {
		if !st.msg.Processed && c.matches(st.msg, source, "", since) {
			n++
		}
	}

	return n, nil
}

// CreateDraft stores an inactive product and claims its messages atomically.
func (c *CatalogStore) CreateDraft(ctx context.Context, p domain.Product, runID string) error {
	if c.CreateDraftFn != nil {
		return c.CreateDraftFn(ctx, p, runID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.products[p.ID]; ok {
		return fmt.Errorf("product %s exists: %w", p.ID, apperrors.ErrInvalidID)
	}

	for _, id := range p.SourceMessageIDs {
		st, ok := c.messages[id]
		if !ok {
			return fmt.Errorf("claim %s: %w", id, apperrors.ErrMessageNotFound)
		}

		if st.msg.Processed {
			return fmt.Errorf("claim %s: %w", id, apperrors.ErrAlreadyConsumed)
		}
	}

	for _, id := range p.SourceMessageIDs {
		st := c.messages[id]
		st.msg.Processed = true
		st.msg.AssignedGroupID = p.GroupID
		st.runID = runID
	}

	p.IsActive = false
	c.storeProduct(p)

	return nil
}

func (c *CatalogStore) storeProduct(p domain.Product) {
	c.seq++

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	p.UpdatedAt = p.CreatedAt
	cp := copyProduct(&p)
	c.products[p.ID] = &cp
	c.order[p.ID] = c.seq
}

// UpdateProduct applies a partial update.
func (c *CatalogStore) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) error {
	if c.UpdateProductFn != nil {
		return c.UpdateProductFn(ctx, id, patch)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, apperrors.ErrProductNotFound)
	}

	patch.ApplyTo(p)
	p.UpdatedAt = time.Now()

	return nil
}

// AddImage appends an image to a product.
func (c *CatalogStore) AddImage(ctx context.Context, img domain.ProductImage) (domain.ProductImage, error) {
	if c.AddImageFn != nil {
		return c.AddImageFn(ctx, img)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[img.ProductID]
	if !ok {
		return domain.ProductImage{}, fmt.Errorf("add image: %w", apperrors.ErrProductNotFound)
	}

	c.seq++

	if img.ID == "" {
		img.ID = fmt.Sprintf("img-%d", c.seq)
	}

	p.Images = append(p.Images, img)

	return img, nil
}

// UpdateImageColor sets the color of an image.
func (c *CatalogStore) UpdateImageColor(_ context.Context, imageID, color string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.products {
		for i := range p.Images {
			if p.Images[i].ID == imageID {
				p.Images[i].Color = color

				return nil
			}
		}
	}

	return fmt.Errorf("image %s: %w", imageID, apperrors.ErrNotFound)
}

// ActivateProduct marks a product active unless another active product shares its fingerprint.
func (c *CatalogStore) ActivateProduct(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return fmt.Errorf("activate %s: %w", id, apperrors.ErrProductNotFound)
	}

	for otherID, other := range c.products {
		if otherID != id && other.IsActive && other.Fingerprint == p.Fingerprint {
			return fmt.Errorf("activate %s: %w", id, apperrors.ErrDuplicateProduct)
		}
	}

	p.IsActive = true

	return nil
}

// DeleteDraft removes a product and releases its messages atomically.
func (c *CatalogStore) DeleteDraft(_ context.Context, id string, messageIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.products[id]; ok {
		delete(c.products, id)
		c.deleted = append(c.deleted, id)
	}

	c.release(messageIDs)

	return nil
}

// FingerprintExists reports whether any product has the fingerprint.
func (c *CatalogStore) FingerprintExists(_ context.Context, fingerprint string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.products {
		if p.Fingerprint == fingerprint {
			return true, nil
		}
	}

	return false, nil
}

// DeleteDuplicateProducts keeps the earliest product per fingerprint.
func (c *CatalogStore) DeleteDuplicateProducts(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byFingerprint := make(map[string][]*domain.Product)
	for _, p := range c.products {
		byFingerprint[p.Fingerprint] = append(byFingerprint[p.Fingerprint], p)
	}

	var removed []string

	for _, group := range byFingerprint {
		if len(group) < 2 {
			continue
		}

		sort.Slice(group, func(i, j int) bool {
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.Before(group[j].CreatedAt)
			}

			return c.order[group[i].ID] < c.order[group[j].ID]
		})

		for _, dup := range group[1:] {
			delete(c.products, dup.ID)
			c.deleted = append(c.deleted, dup.ID)
			removed = append(removed, dup.ID)
		}
	}

	sort.Strings(removed)

	return removed, nil
}

// ListActiveCategories returns active categories.
func (c *CatalogStore) ListActiveCategories(_ context.Context) ([]domain.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Category, 0, len(c.categories))

	for _, cat := range c.categories {
		if cat.IsActive {
			out = append(out, cat)
		}
	}

	return out, nil
}

func sortMessages(msgs []domain.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}

		return strings.Compare(msgs[i].ID, msgs[j].ID) < 0
	})
}

func copyProduct(p *domain.Product) domain.Product {
	cp := *p
	cp.SourceMessageIDs = append([]string(nil), p.SourceMessageIDs...)
	cp.Sizes = append([]string(nil), p.Sizes...)
	cp.Images = append([]domain.ProductImage(nil), p.Images...)

	return cp
}
