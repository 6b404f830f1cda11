package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"genie-bot/internal/domain"
	"genie-bot/internal/export"
)

const (
	fileNotFoundMessage  = "File not found. The export may have expired, please run your query again."
	uploadFailedMessage  = "Failed to deliver the exported file. Please run your query again."
	declineAckMessage    = "Okay, the export was discarded."
	badUploadInfoMessage = "The channel did not provide an upload destination for the file."
)

// offer is the artifact most recently offered to a user and still awaiting
// consent.
type offer struct {
	token    string
	filename string
	size     int64
}

// Handshake negotiates artifact delivery through a channel that requires
// explicit user consent before receiving a file. State per user moves
// Idle -> Offered -> accepted/declined and back to Idle; a new offer
// overwrites any outstanding one (last write wins).
type Handshake struct {
	cache *export.Cache

	mu     sync.Mutex
	offers map[string]offer
}

func NewHandshake(cache *export.Cache) (*Handshake, error) {
	if cache == nil {
		return nil, errors.New("bot: export cache must not be nil")
	}
	return &Handshake{cache: cache, offers: make(map[string]offer)}, nil
}

// Offer records the artifact under the user and sends a file consent request.
func (h *Handshake) Offer(ctx context.Context, userID, token, filename string, size int64, tp Transport) error {
	h.mu.Lock()
	h.offers[userID] = offer{token: token, filename: filename, size: size}
	h.mu.Unlock()

	return tp.SendFileOffer(ctx, domain.FileOffer{
		Filename:  filename,
		SizeBytes: size,
		Token:     token,
	})
}

// HandleInvoke resolves a file consent response. It reports false for any
// invoke it does not recognize so the caller can fall through to default
// event handling.
func (h *Handshake) HandleInvoke(ctx context.Context, ev domain.InvokeEvent, tp Transport) (bool, error) {
	if ev.Name != domain.FileConsentInvokeName || ev.FileConsent == nil {
		return false, nil
	}
	switch ev.FileConsent.Action {
	case domain.ConsentAccept:
		return true, h.accept(ctx, ev, tp)
	case domain.ConsentDecline:
		return true, h.decline(ctx, ev.UserID, tp)
	}
	return false, nil
}

func (h *Handshake) accept(ctx context.Context, ev domain.InvokeEvent, tp Transport) error {
	off, ok := h.takeOffer(ev.UserID)
	if !ok {
		return tp.SendText(ctx, fileNotFoundMessage)
	}

	entry, err := h.cache.Get(off.token)
	if err != nil {
		return tp.SendText(ctx, fileNotFoundMessage)
	}

	info := ev.FileConsent.UploadInfo
	if info == nil || info.UploadURL == "" {
		return tp.SendText(ctx, badUploadInfoMessage)
	}

	if err := tp.Upload(ctx, info.UploadURL, entry.Artifact); err != nil {
		slog.Error("artifact upload failed", "user_id", ev.UserID, "err", err)
		return tp.SendText(ctx, uploadFailedMessage)
	}
	h.cache.Delete(off.token)

	filename := info.Name
	if filename == "" {
		filename = off.filename
	}
	return tp.SendFileConfirmation(ctx, domain.FileConfirmation{
		Filename:   filename,
		ContentURL: info.ContentURL,
		UniqueID:   info.UniqueID,
	})
}

func (h *Handshake) decline(ctx context.Context, userID string, tp Transport) error {
	if off, ok := h.takeOffer(userID); ok {
		h.cache.Delete(off.token)
	}
	return tp.SendText(ctx, declineAckMessage)
}

// takeOffer removes and returns the outstanding offer for a user; the state
// returns to Idle whether or not delivery succeeds afterwards.
func (h *Handshake) takeOffer(userID string) (offer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	off, ok := h.offers[userID]
	if ok {
		delete(h.offers, userID)
	}
	return off, ok
}
