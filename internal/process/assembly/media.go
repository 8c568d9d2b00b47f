package assembly

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	"github.com/lueurxax/supplier-catalog/internal/platform/observability"
)

// materialized is a stored product image plus the payload stage 4 analyzes.
type materialized struct {
	domain.ProductImage
	data        []byte
	contentType string
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// materializeMedia downloads every image-eligible member, stores it and
// attaches it to the product. A failed image is logged and left out.
func (a *Assembler) materializeMedia(ctx context.Context, logger zerolog.Logger, productID string, group domain.MessageGroup) []materialized {
	sources := group.ImageMessages()
	slots := make([]*materialized, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.ImageConcurrency)

	for i, msg := range sources {
		g.Go(func() error {
			img, err := a.storeImage(gctx, productID, i, msg)
			if err != nil {
				observability.MediaDownloads.WithLabelValues(observability.StatusError).Inc()
				logger.Warn().Err(err).Str(logKeyMsgID, msg.ID).Msg("image materialization failed")

				return nil
			}

			observability.MediaDownloads.WithLabelValues(observability.StatusSuccess).Inc()

			slots[i] = img

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors

	out := make([]materialized, 0, len(slots))

	// Images are attached in message order so positions stay deterministic.
	for _, slot := range slots {
		if slot == nil {
			continue
		}

		slot.Position = len(out)

		saved, err := a.store.AddImage(ctx, slot.ProductImage)
		if err != nil {
			logger.Warn().Err(err).Str(logKeyMsgID, slot.SourceMessageID).Msg("failed to attach image")
			a.deleteObjects(ctx, logger, []string{slot.URL})

			continue
		}

		slot.ProductImage = saved
		out = append(out, *slot)
	}

	return out
}

func (a *Assembler) storeImage(ctx context.Context, productID string, index int, msg domain.ChatMessage) (*materialized, error) {
	data, contentType, err := a.fetcher.Fetch(ctx, msg.MediaRef)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", msg.MediaRef, err)
	}

	key := objectKey(productID, index, msg.ID, contentType)

	url, err := a.objects.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", key, err)
	}

	return &materialized{
		ProductImage: domain.ProductImage{
			ProductID:       productID,
			SourceMessageID: msg.ID,
			URL:             url,
		},
		data:        data,
		contentType: contentType,
	}, nil
}

// deleteObjects removes stored images. Failures are logged only.
func (a *Assembler) deleteObjects(ctx context.Context, logger zerolog.Logger, urls []string) {
	for _, url := range urls {
		if err := a.objects.Delete(ctx, url); err != nil {
			logger.Warn().Err(err).Str(logKeyURL, url).Msg("failed to delete stored image")
		}
	}
}

func objectKey(productID string, index int, msgID, contentType string) string {
	ext, ok := imageExtensions[strings.ToLower(contentType)]
	if !ok {
		ext = ".bin"
	}

	return fmt.Sprintf("products/%s/%02d-%s%s", productID, index, safeKeyPart(msgID), ext)
}

func safeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
