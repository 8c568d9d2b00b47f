package mtproto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/lueurxax/supplier-catalog/internal/media"
)

// ErrMediaTooLarge indicates an image document above the size limit.
var ErrMediaTooLarge = errors.New("media exceeds size limit")

// ErrNoPhotoSize indicates a photo without a downloadable size.
var ErrNoPhotoSize = errors.New("photo has no downloadable size")

const contentTypeJPEG = "image/jpeg"

// storeMedia downloads the image of msg into the object store and returns
// its object media ref.
func (r *Reader) storeMedia(ctx context.Context, api *tg.Client, chat resolvedChat, msg *tg.Message) (string, error) {
	location, contentType, err := r.fileLocation(msg.Media)
	if err != nil {
		return "", err
	}

	buf := new(bytes.Buffer)
	if _, err := downloader.NewDownloader().Download(api, location).Stream(ctx, buf); err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}

	url, err := r.objects.Put(ctx, incomingKey(chat.chatID, msg.ID, contentType), buf.Bytes(), contentType)
	if err != nil {
		return "", fmt.Errorf("store media: %w", err)
	}

	return media.SchemeObject + url, nil
}

func (r *Reader) fileLocation(m tg.MessageMediaClass) (tg.InputFileLocationClass, string, error) {
	switch m := m.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil, "", ErrNoPhotoSize
		}

		thumb := largestPhotoSize(photo.Sizes)
		if thumb == "" {
			return nil, "", ErrNoPhotoSize
		}

		return &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     thumb,
		}, contentTypeJPEG, nil
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok || !isImageDocument(doc) {
			return nil, "", fmt.Errorf("%w: not an image document", media.ErrUnsupportedRef)
		}

		if r.cfg.MaxMediaBytes > 0 && doc.Size > r.cfg.MaxMediaBytes {
			return nil, "", fmt.Errorf("%w: %d bytes", ErrMediaTooLarge, doc.Size)
		}

		contentType := doc.MimeType
		if !strings.HasPrefix(contentType, "image/") {
			contentType = contentTypeJPEG
		}

		return &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}, contentType, nil
	default:
		return nil, "", fmt.Errorf("%w: %T", media.ErrUnsupportedRef, m)
	}
}

// largestPhotoSize returns the type of the biggest downloadable size.
func largestPhotoSize(sizes []tg.PhotoSizeClass) string {
	best, maxArea := "", 0

	for _, size := range sizes {
		switch s := size.(type) {
		case *tg.PhotoSize:
			if s.W*s.H > maxArea {
				best, maxArea = s.Type, s.W*s.H
			}
		case *tg.PhotoSizeProgressive:
			if s.W*s.H > maxArea {
				best, maxArea = s.Type, s.W*s.H
			}
		}
	}

	return best
}

func isImageDocument(doc *tg.Document) bool {
	if strings.HasPrefix(doc.MimeType, "image/") {
		return true
	}

	for _, attr := range doc.Attributes {
		if _, ok := attr.(*tg.DocumentAttributeImageSize); ok {
			return true
		}
	}

	return false
}

func incomingKey(chatID string, msgID int, contentType string) string {
	ext := ".jpg"

	switch contentType {
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	case "image/gif":
		ext = ".gif"
	}

	return fmt.Sprintf("incoming/telegram/%s/%d%s", strings.TrimPrefix(chatID, "-"), msgID, ext)
}
