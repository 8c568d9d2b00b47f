// Package mtproto reads supplier chat history through a Telegram user
// session. Each poll fetches the messages after a per-chat cursor, stores
// their photos in the object store and ingests them in chat order.
package mtproto

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	"github.com/lueurxax/supplier-catalog/internal/core/ports"
	"github.com/lueurxax/supplier-catalog/internal/ingest"
	"github.com/lueurxax/supplier-catalog/internal/platform/worker"
)

// ErrChatNotFound indicates a configured chat could not be resolved.
var ErrChatNotFound = errors.New("chat not found")

// ErrUnsupportedChat indicates the resolved peer is not a group or channel.
var ErrUnsupportedChat = errors.New("peer is not a group or channel")

// ErrUnexpectedInviteType indicates an unexpected invite type was returned.
var ErrUnexpectedInviteType = errors.New("chat invite returned unexpected type")

const (
	cursorSource = string(domain.SourceTelegram)

	// channelPeerOffset converts MTProto channel ids to Bot API chat ids so
	// both Telegram ingestion paths address a chat the same way.
	channelPeerOffset = 1_000_000_000_000

	defaultFetchLimit   = 50
	defaultPollInterval = time.Minute

	logKeyChat   = "chat"
	logKeyMsgID  = "msg_id"
	logKeyCount  = "count"
	logKeyCursor = "cursor"
)

// Config configures the reader.
type Config struct {
	APIID         int
	APIHash       string
	Phone         string
	Password      string
	SessionPath   string
	Chats         []string
	FetchLimit    int
	PollInterval  time.Duration
	MaxMediaBytes int64
}

// CursorStore persists the last ingested message id per chat.
type CursorStore interface {
	GetCursor(ctx context.Context, source, chatID string) (int64, error)
	SaveCursor(ctx context.Context, source, chatID string, lastMessageID int64) error
}

// Ingester stores normalized supplier messages.
type Ingester interface {
	Ingest(ctx context.Context, r ingest.Record) (bool, error)
}

// resolvedChat is a configured chat with its input peer.
type resolvedChat struct {
	name   string
	chatID string
	peer   tg.InputPeerClass
}

type Reader struct {
	cfg      Config
	cursors  CursorStore
	ingester Ingester
	objects  ports.ObjectStore
	client   *telegram.Client
	chats    map[string]resolvedChat
	logger   *zerolog.Logger
}

func New(cfg Config, cursors CursorStore, ingester Ingester, objects ports.ObjectStore, logger *zerolog.Logger) *Reader {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = defaultFetchLimit
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	return &Reader{
		cfg:      cfg,
		cursors:  cursors,
		ingester: ingester,
		objects:  objects,
		chats:    make(map[string]resolvedChat),
		logger:   logger,
	}
}

// Run authenticates and polls the configured chats until ctx is canceled.
func (r *Reader) Run(ctx context.Context) error {
	client := telegram.NewClient(r.cfg.APIID, r.cfg.APIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{
			Path: r.cfg.SessionPath,
		},
	})

	r.client = client

	return client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, r.authFlow()); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}

		r.logger.Info().Int("chats", len(r.cfg.Chats)).Msg("authenticated, polling supplier chats")

		api := tg.NewClient(client)

		return worker.Loop(ctx, worker.Config{
			Name:           "mtproto-reader",
			PollInterval:   r.cfg.PollInterval,
			BackoffOnError: true,
			Logger:         r.logger,
			Process: func(ctx context.Context) error {
				return r.pollOnce(ctx, api)
			},
		})
	})
}

// pollOnce reads every chat once. It fails only when no chat could be read.
func (r *Reader) pollOnce(ctx context.Context, api *tg.Client) error {
	start := time.Now()
	total := 0

	var errs []error

	for _, name := range r.cfg.Chats {
		n, err := r.pollChat(ctx, api, name)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			r.logger.Error().Err(err).Str(logKeyChat, name).Msg("failed to read chat")
			errs = append(errs, fmt.Errorf("chat %s: %w", name, err))

			continue
		}

		total += n
	}

	r.logger.Info().Int(logKeyCount, total).Dur("duration", time.Since(start)).Msg("finished polling cycle")

	if len(errs) > 0 && len(errs) == len(r.cfg.Chats) {
		return errors.Join(errs...)
	}

	return nil
}

func (r *Reader) pollChat(ctx context.Context, api *tg.Client, name string) (int, error) {
	chat, err := r.resolve(ctx, api, name)
	if err != nil {
		return 0, err
	}

	cursor, err := r.cursors.GetCursor(ctx, cursorSource, chat.chatID)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}

	msgs, err := r.fetchHistory(ctx, api, chat, cursor)
	if err != nil || len(msgs) == 0 {
		return 0, err
	}

	count := 0
	last := cursor

	for _, msg := range msgs {
		inserted, err := r.ingestOne(ctx, api, chat, msg)
		if err != nil {
			// The cursor stops before the failed message so the next poll retries it.
			r.saveCursor(ctx, chat, last)

			return count, fmt.Errorf("message %d: %w", msg.ID, err)
		}

		if inserted {
			count++
		}

		last = int64(msg.ID)
	}

	r.saveCursor(ctx, chat, last)

	if count > 0 {
		r.logger.Info().Str(logKeyChat, chat.name).Int(logKeyCount, count).Int64(logKeyCursor, last).Msg("saved supplier messages")
	}

	return count, nil
}

func (r *Reader) saveCursor(ctx context.Context, chat resolvedChat, last int64) {
	if err := r.cursors.SaveCursor(context.WithoutCancel(ctx), cursorSource, chat.chatID, last); err != nil {
		r.logger.Error().Err(err).Str(logKeyChat, chat.name).Int64(logKeyCursor, last).Msg("failed to save cursor")
	}
}

// fetchHistory returns the messages after cursor, oldest first.
func (r *Reader) fetchHistory(ctx context.Context, api *tg.Client, chat resolvedChat, cursor int64) ([]*tg.Message, error) {
	req := &tg.MessagesGetHistoryRequest{
		Peer:  chat.peer,
		Limit: r.cfg.FetchLimit,
	}

	if cursor > 0 {
		req.OffsetID = int(cursor)
		req.AddOffset = -r.cfg.FetchLimit
	}

	history, err := api.MessagesGetHistory(ctx, req)
	if err != nil {
		if floodErr, ok := tgerr.As(err); ok && floodErr.Type == "FLOOD_WAIT" {
			r.logger.Warn().Int("seconds", floodErr.Argument).Str(logKeyChat, chat.name).Msg("flood wait")

			return nil, worker.Wait(ctx, time.Duration(floodErr.Argument)*time.Second)
		}

		return nil, fmt.Errorf("get history: %w", err)
	}

	var raw []tg.MessageClass

	switch h := history.(type) {
	case *tg.MessagesMessages:
		raw = h.Messages
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	case *tg.MessagesMessagesNotModified:
		return nil, nil
	}

	return newerMessages(raw, cursor), nil
}

// newerMessages keeps regular messages with an id above cursor, sorted by id.
func newerMessages(raw []tg.MessageClass, cursor int64) []*tg.Message {
	msgs := make([]*tg.Message, 0, len(raw))

	for _, m := range raw {
		msg, ok := m.(*tg.Message)
		if !ok || int64(msg.ID) <= cursor {
			continue
		}

		msgs = append(msgs, msg)
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })

	return msgs
}

func (r *Reader) ingestOne(ctx context.Context, api *tg.Client, chat resolvedChat, msg *tg.Message) (bool, error) {
	record, ok := recordFromMessage(chat.chatID, msg)
	if !ok {
		return false, nil
	}

	if record.Kind == string(domain.KindImage) {
		ref, err := r.storeMedia(ctx, api, chat, msg)
		if err != nil {
			return false, err
		}

		record.MediaRef = ref
	}

	inserted, err := r.ingester.Ingest(ctx, record)
	if err != nil {
		return false, fmt.Errorf("ingest: %w", err)
	}

	return inserted, nil
}

// recordFromMessage maps an MTProto message to an ingestion record. Image
// records are returned without a media ref; the caller stores the payload.
func recordFromMessage(chatID string, msg *tg.Message) (ingest.Record, bool) {
	record := ingest.Record{
		Source:    domain.SourceTelegram,
		NativeID:  strconv.Itoa(msg.ID),
		ChatID:    chatID,
		SenderID:  senderID(chatID, msg),
		Timestamp: time.Unix(int64(msg.Date), 0),
		Text:      msg.Message,
	}

	switch mediaKind(msg.Media) {
	case domain.KindImage:
		record.Kind = string(domain.KindImage)
	case domain.KindOther:
		record.Kind = string(domain.KindOther)
	default:
		if strings.TrimSpace(msg.Message) == "" {
			return ingest.Record{}, false
		}

		record.Kind = string(domain.KindText)
	}

	return record, true
}

// mediaKind classifies message media. Link previews count as no media.
func mediaKind(media tg.MessageMediaClass) domain.MessageKind {
	switch m := media.(type) {
	case nil, *tg.MessageMediaEmpty, *tg.MessageMediaWebPage:
		return ""
	case *tg.MessageMediaPhoto:
		if _, ok := m.Photo.(*tg.Photo); ok {
			return domain.KindImage
		}

		return domain.KindOther
	case *tg.MessageMediaDocument:
		if doc, ok := m.Document.(*tg.Document); ok && isImageDocument(doc) {
			return domain.KindImage
		}

		return domain.KindOther
	default:
		return domain.KindOther
	}
}

func senderID(chatID string, msg *tg.Message) string {
	from, ok := msg.GetFromID()
	if !ok {
		return chatID
	}

	switch p := from.(type) {
	case *tg.PeerUser:
		return strconv.FormatInt(p.UserID, 10)
	case *tg.PeerChannel:
		return channelChatID(p.ChannelID)
	case *tg.PeerChat:
		return basicChatID(p.ChatID)
	default:
		return chatID
	}
}

func channelChatID(id int64) string {
	return strconv.FormatInt(-(channelPeerOffset + id), 10)
}

func basicChatID(id int64) string {
	return strconv.FormatInt(-id, 10)
}
