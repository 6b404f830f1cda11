// Package bot coordinates one inbound channel event per invocation: it asks
// the query service, renders the answer, and arranges artifact delivery.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"genie-bot/internal/domain"
	"genie-bot/internal/export"
	"genie-bot/internal/render"
	"genie-bot/internal/usecase"
)

const welcomeMessage = "Welcome to the Databricks Genie Bot!"

// Asker runs one orchestration turn against the query service.
type Asker interface {
	Ask(ctx context.Context, in usecase.AskInput) usecase.AskOutput
}

type Config struct {
	SpaceID string
	// DownloadBaseURL enables link mode: tabular answers get an
	// out-of-band download link appended instead of a consent card.
	DownloadBaseURL string
}

// Bot is the per-turn coordinator. It owns the user -> conversation id map;
// the channel delivers turns for one user serially, but the map is still
// guarded to tolerate violations of that assumption.
type Bot struct {
	ask       Asker
	cache     *export.Cache
	handshake *Handshake
	cfg       Config
	now       func() time.Time

	convMu        sync.Mutex
	conversations map[string]string
}

func NewBot(ask Asker, cache *export.Cache, handshake *Handshake, cfg Config) (*Bot, error) {
	if ask == nil {
		return nil, errors.New("bot: asker must not be nil")
	}
	if cache == nil {
		return nil, errors.New("bot: export cache must not be nil")
	}
	if handshake == nil {
		return nil, errors.New("bot: handshake must not be nil")
	}
	if strings.TrimSpace(cfg.SpaceID) == "" {
		return nil, errors.New("bot: space id must not be empty")
	}
	cfg.DownloadBaseURL = strings.TrimRight(strings.TrimSpace(cfg.DownloadBaseURL), "/")
	return &Bot{
		ask:           ask,
		cache:         cache,
		handshake:     handshake,
		cfg:           cfg,
		now:           time.Now,
		conversations: make(map[string]string),
	}, nil
}

// HandleMessage runs a full question turn and replies with the rendered
// answer, plus a download offer when the answer produced an artifact.
func (b *Bot) HandleMessage(ctx context.Context, ev domain.MessageEvent, tp Transport) error {
	question := strings.TrimSpace(ev.Text)
	if question == "" {
		return nil
	}

	out := b.ask.Ask(ctx, usecase.AskInput{
		Question:       question,
		SpaceID:        b.cfg.SpaceID,
		ConversationID: b.conversationID(ev.UserID),
	})
	if out.ConversationID != "" {
		b.setConversationID(ev.UserID, out.ConversationID)
	}

	text := render.Format(out.Answer)

	if t := out.Answer.Tabular; t != nil {
		if artifact := export.Build(t.Columns, t.Rows, t.Description); artifact != nil {
			token := b.cache.Put(artifact, t.Description)
			filename := export.FilenameAt(b.now())
			if b.cfg.DownloadBaseURL != "" {
				text += "\n\n\U0001F4CA **[Download as Excel](" + b.cfg.DownloadBaseURL + "/download/" + token + ")**\n"
			} else {
				if err := tp.SendText(ctx, text); err != nil {
					return err
				}
				return b.handshake.Offer(ctx, ev.UserID, token, filename, int64(len(artifact)), tp)
			}
		}
	}
	return tp.SendText(ctx, text)
}

// HandleInvoke resolves consent responses; anything else is reported as
// unhandled so the channel adapter applies its default handling.
func (b *Bot) HandleInvoke(ctx context.Context, ev domain.InvokeEvent, tp Transport) (bool, error) {
	return b.handshake.HandleInvoke(ctx, ev, tp)
}

// HandleMembersAdded greets every member joining the conversation except the
// bot itself.
func (b *Bot) HandleMembersAdded(ctx context.Context, ev domain.MembersAddedEvent, tp Transport) error {
	for _, id := range ev.MemberIDs {
		if id == ev.RecipientID {
			continue
		}
		if err := tp.SendText(ctx, welcomeMessage); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) conversationID(userID string) string {
	b.convMu.Lock()
	defer b.convMu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) setConversationID(userID, conversationID string) {
	b.convMu.Lock()
	defer b.convMu.Unlock()
	b.conversations[userID] = conversationID
}
