package mtproto

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

var invitePrefixes = []string{"https://t.me/joinchat/", "https://t.me/+", "t.me/joinchat/", "t.me/+"}

type chatRefKind int

const (
	chatRefUsername chatRefKind = iota
	chatRefInvite
	chatRefBasicGroup
)

// parseChatRef classifies a configured chat: an invite link, a numeric basic
// group id, or a username with optional @ and t.me prefix.
func parseChatRef(ref string) (chatRefKind, string) {
	ref = strings.TrimSpace(ref)

	for _, prefix := range invitePrefixes {
		if strings.HasPrefix(ref, prefix) {
			return chatRefInvite, strings.TrimPrefix(ref, prefix)
		}
	}

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if id < 0 {
			id = -id
		}

		return chatRefBasicGroup, strconv.FormatInt(id, 10)
	}

	ref = strings.TrimPrefix(ref, "https://t.me/")
	ref = strings.TrimPrefix(ref, "t.me/")

	return chatRefUsername, strings.TrimPrefix(ref, "@")
}

// resolve returns the peer of a configured chat, caching it for later polls.
func (r *Reader) resolve(ctx context.Context, api *tg.Client, name string) (resolvedChat, error) {
	if chat, ok := r.chats[name]; ok {
		return chat, nil
	}

	kind, value := parseChatRef(name)

	var (
		chat resolvedChat
		err  error
	)

	switch kind {
	case chatRefInvite:
		chat, err = r.joinInvite(ctx, api, value)
	case chatRefBasicGroup:
		id, _ := strconv.ParseInt(value, 10, 64)
		chat = resolvedChat{chatID: basicChatID(id), peer: &tg.InputPeerChat{ChatID: id}}
	default:
		chat, err = r.resolveUsername(ctx, api, value)
	}

	if err != nil {
		return resolvedChat{}, err
	}

	chat.name = name
	r.chats[name] = chat

	r.logger.Info().Str(logKeyChat, name).Str("chat_id", chat.chatID).Msg("resolved supplier chat")

	return chat, nil
}

func (r *Reader) resolveUsername(ctx context.Context, api *tg.Client, username string) (resolvedChat, error) {
	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return resolvedChat{}, fmt.Errorf("resolve username %s: %w", username, err)
	}

	if len(resolved.Chats) == 0 {
		return resolvedChat{}, fmt.Errorf("%w: %s", ErrChatNotFound, username)
	}

	return chatFromClass(resolved.Chats[0], username)
}

func (r *Reader) joinInvite(ctx context.Context, api *tg.Client, hash string) (resolvedChat, error) {
	r.logger.Info().Msg("joining supplier chat by invite link")

	updates, err := api.MessagesImportChatInvite(ctx, hash)
	if err == nil {
		if u, ok := updates.(*tg.Updates); ok && len(u.Chats) > 0 {
			return chatFromClass(u.Chats[0], hash)
		}

		return resolvedChat{}, fmt.Errorf("%w: %T", ErrUnexpectedInviteType, updates)
	}

	if !tgerr.Is(err, "USER_ALREADY_PARTICIPANT") {
		return resolvedChat{}, fmt.Errorf("join by invite link: %w", err)
	}

	invite, err := api.MessagesCheckChatInvite(ctx, hash)
	if err != nil {
		return resolvedChat{}, fmt.Errorf("check chat invite: %w", err)
	}

	already, ok := invite.(*tg.ChatInviteAlready)
	if !ok {
		return resolvedChat{}, fmt.Errorf("%w: %T", ErrUnexpectedInviteType, invite)
	}

	return chatFromClass(already.Chat, hash)
}

func chatFromClass(c tg.ChatClass, name string) (resolvedChat, error) {
	switch ch := c.(type) {
	case *tg.Channel:
		return resolvedChat{
			chatID: channelChatID(ch.ID),
			peer:   &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
		}, nil
	case *tg.Chat:
		return resolvedChat{
			chatID: basicChatID(ch.ID),
			peer:   &tg.InputPeerChat{ChatID: ch.ID},
		}, nil
	default:
		return resolvedChat{}, fmt.Errorf("%w: %s", ErrUnsupportedChat, name)
	}
}
