package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/supplier-catalog/internal/platform/retry"
)

// Reference schemes.
const (
	SchemeTelegramFile = "tgfile:"
	SchemeObject       = "object:"
)

// Fetch errors.
var (
	ErrUnsupportedRef   = errors.New("unsupported media reference")
	ErrTooLarge         = errors.New("media exceeds size limit")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrNoResolver       = errors.New("no telegram file resolver configured")
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxBytes  = 10 << 20
	maxRedirects     = 5
	hostLimiterRate  = 2
	hostLimiterBurst = 4
	sniffLen         = 512
	userAgent        = "supplier-catalog/1.0"

	logKeyRef = "ref"
)

// FileURLResolver turns a Telegram Bot API file id into a download URL.
// *tgbotapi.BotAPI satisfies it.
type FileURLResolver interface {
	GetFileDirectURL(fileID string) (string, error)
}

// ObjectReader reads objects from the catalog's own store.
type ObjectReader interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// FetcherConfig configures the fetcher.
type FetcherConfig struct {
	Timeout  time.Duration
	MaxBytes int64
	Retry    retry.Config
}

// Fetcher downloads media by reference: tgfile:<file_id>, object:<url>
// (already stored at ingestion time) and plain http(s) URLs.
type Fetcher struct {
	cfg      FetcherConfig
	client   *http.Client
	telegram FileURLResolver
	objects  ObjectReader
	logger   *zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher creates a fetcher. telegram and objects may be nil.
func NewFetcher(cfg FetcherConfig, telegram FileURLResolver, objects ObjectReader, logger *zerolog.Logger) *Fetcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}

	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrTooManyRedirects
				}

				return nil
			},
		},
		telegram: telegram,
		objects:  objects,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Fetch returns the payload and its content type.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)

	switch {
	case strings.HasPrefix(ref, SchemeObject):
		return f.fetchObject(ctx, strings.TrimPrefix(ref, SchemeObject))
	case strings.HasPrefix(ref, SchemeTelegramFile):
		return f.fetchTelegram(ctx, strings.TrimPrefix(ref, SchemeTelegramFile))
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return f.download(ctx, ref)
	default:
		return nil, "", fmt.Errorf("%q: %w", ref, ErrUnsupportedRef)
	}
}

func (f *Fetcher) fetchObject(ctx context.Context, objectURL string) ([]byte, string, error) {
	if f.objects == nil {
		return f.download(ctx, objectURL)
	}

	data, err := f.objects.Get(ctx, objectURL)
	if err != nil {
		return nil, "", fmt.Errorf("read stored media: %w", err)
	}

	return data, detectType(data, ""), nil
}

func (f *Fetcher) fetchTelegram(ctx context.Context, fileID string) ([]byte, string, error) {
	if f.telegram == nil {
		return nil, "", ErrNoResolver
	}

	link, err := retry.DoValue(ctx, f.cfg.Retry, func(context.Context) (string, error) {
		return f.telegram.GetFileDirectURL(fileID)
	})
	if err != nil {
		return nil, "", fmt.Errorf("resolve telegram file: %w", redactURLError(err))
	}

	return f.download(ctx, link)
}

type payload struct {
	data        []byte
	contentType string
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := f.limiter(rawURL).Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("media rate limiter wait: %w", err)
	}

	p, err := retry.DoValue(ctx, f.cfg.Retry, func(ctx context.Context) (payload, error) {
		return f.get(ctx, rawURL)
	})
	if err != nil {
		f.logger.Debug().Err(err).Str(logKeyRef, redact(rawURL)).Msg("media download failed")

		return nil, "", err
	}

	return p.data, p.contentType, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (payload, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return payload{}, fmt.Errorf("create request: %w", redactURLError(err))
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return payload{}, fmt.Errorf("execute request: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return payload{}, &retry.StatusError{Op: "download media", Status: resp.StatusCode}
	}

	if resp.ContentLength > f.cfg.MaxBytes {
		return payload{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return payload{}, fmt.Errorf("read response body: %w", err)
	}

	if int64(len(body)) > f.cfg.MaxBytes {
		return payload{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.cfg.MaxBytes)
	}

	return payload{data: body, contentType: detectType(body, resp.Header.Get("Content-Type"))}, nil
}

func (f *Fetcher) limiter(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = strings.ToLower(u.Host)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(hostLimiterRate, hostLimiterBurst)
		f.limiters[host] = l
	}

	return l
}

// detectType prefers a declared image type and sniffs everything else.
func detectType(data []byte, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	if strings.HasPrefix(declared, "image/") {
		return declared
	}

	return http.DetectContentType(data[:min(len(data), sniffLen)])
}

// redactURLError strips the bot token from the URL that net/http embeds in
// its errors. The underlying cause is kept for retry classification.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = redact(urlErr.URL)
	}

	return err
}

// redact hides the bot token embedded in Bot API file URLs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url"
	}

	switch {
	case strings.HasPrefix(u.Path, "/file/bot"):
		return u.Scheme + "://" + u.Host + "/file/bot***"
	case strings.HasPrefix(u.Path, "/bot"):
		return u.Scheme + "://" + u.Host + "/bot***"
	}

	return u.Redacted()
}
