// Package handler exposes the HTTP surface: the channel webhook, the
// artifact download endpoint, and probe routes.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"genie-bot/internal/bot"
	"genie-bot/internal/domain"
	"genie-bot/internal/export"
	"genie-bot/internal/integrations/botframework"
)

type Handler struct {
	bot       *bot.Bot
	cache     *export.Cache
	connector *botframework.Client
}

func NewHandler(b *bot.Bot, cache *export.Cache, connector *botframework.Client) (*Handler, error) {
	if b == nil {
		return nil, errors.New("handler: bot must not be nil")
	}
	if cache == nil {
		return nil, errors.New("handler: export cache must not be nil")
	}
	if connector == nil {
		return nil, errors.New("handler: connector must not be nil")
	}
	return &Handler{bot: b, cache: cache, connector: connector}, nil
}

// Routes registers all endpoints on the router.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/robots933456.txt", h.Robots).Methods(http.MethodGet)
	r.HandleFunc("/api/messages", h.Messages).Methods(http.MethodPost)
	r.HandleFunc("/download/{token}", h.Download).Methods(http.MethodGet)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// Robots answers the probe Azure App Service issues during warmup.
func (h *Handler) Robots(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("User-agent: *\nDisallow:"))
}

// Messages accepts one channel activity, dispatches the turn on its own
// goroutine, and acknowledges immediately so a slow external call never
// blocks event intake.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	var activity botframework.Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		http.Error(w, "invalid activity payload", http.StatusBadRequest)
		return
	}

	tp := h.connector.ReplyTransport(activity)

	switch activity.Type {
	case botframework.ActivityMessage:
		ev := domain.MessageEvent{UserID: activity.UserID(), Text: activity.Text}
		go h.dispatch("message", func(ctx context.Context) error {
			return h.bot.HandleMessage(ctx, ev, tp)
		})
		w.WriteHeader(http.StatusCreated)

	case botframework.ActivityInvoke:
		value, err := botframework.DecodeFileConsent(activity)
		if err != nil {
			http.Error(w, "invalid invoke payload", http.StatusBadRequest)
			return
		}
		ev := domain.InvokeEvent{UserID: activity.UserID(), Name: activity.Name, FileConsent: value}
		go h.dispatch("invoke", func(ctx context.Context) error {
			// Unhandled invokes fall through to default handling,
			// which is the acknowledgement already sent below.
			_, err := h.bot.HandleInvoke(ctx, ev, tp)
			return err
		})
		w.WriteHeader(http.StatusOK)

	case botframework.ActivityConversationUpdate:
		ev := domain.MembersAddedEvent{RecipientID: recipientID(activity)}
		for _, member := range activity.MembersAdded {
			ev.MemberIDs = append(ev.MemberIDs, member.ID)
		}
		go h.dispatch("conversationUpdate", func(ctx context.Context) error {
			return h.bot.HandleMembersAdded(ctx, ev, tp)
		})
		w.WriteHeader(http.StatusCreated)

	default:
		w.WriteHeader(http.StatusCreated)
	}
}

// Download serves a cached artifact. Tokens are short-lived and may be
// single-use, so responses are never cacheable.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	entry, err := h.cache.Get(token)
	if err != nil {
		http.Error(w, "Download not found or expired", http.StatusNotFound)
		return
	}

	filename := export.FilenameAt(entry.CreatedAt)
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(entry.Artifact)
}

// dispatch runs one turn to completion off the request goroutine. The turn
// gets a fresh context because it outlives the webhook request.
func (h *Handler) dispatch(kind string, fn func(context.Context) error) {
	if err := fn(context.Background()); err != nil {
		slog.Error("turn failed", "kind", kind, "err", err)
	}
}

func recipientID(activity botframework.Activity) string {
	if activity.Recipient == nil {
		return ""
	}
	return activity.Recipient.ID
}
