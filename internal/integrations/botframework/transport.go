package botframework

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"genie-bot/internal/domain"
)

// uploadTimeout bounds the single artifact upload request. The handshake
// never retries, so the bound is the only protection against a stalled
// destination.
const uploadTimeout = 60 * time.Second

// TurnTransport delivers replies for one inbound activity. It satisfies
// bot.Transport.
type TurnTransport struct {
	client         *Client
	serviceURL     string
	conversationID string
	replyToID      string
	from           *ChannelAccount
	recipient      *ChannelAccount
}

// ReplyTransport binds a transport to the conversation of an inbound
// activity, with sender and recipient swapped for replies.
func (c *Client) ReplyTransport(inbound Activity) *TurnTransport {
	t := &TurnTransport{
		client:     c,
		serviceURL: inbound.ServiceURL,
		replyToID:  inbound.ID,
		from:       inbound.Recipient,
		recipient:  inbound.From,
	}
	if inbound.Conversation != nil {
		t.conversationID = inbound.Conversation.ID
	}
	return t
}

func (t *TurnTransport) reply(activity Activity) Activity {
	activity.From = t.from
	activity.Recipient = t.recipient
	activity.ReplyToID = t.replyToID
	if t.conversationID != "" {
		activity.Conversation = &ConversationAccount{ID: t.conversationID}
	}
	return activity
}

func (t *TurnTransport) SendText(ctx context.Context, text string) error {
	return t.client.sendActivity(ctx, t.serviceURL, t.conversationID, t.replyToID, t.reply(Activity{
		Type:       ActivityMessage,
		Text:       text,
		TextFormat: "markdown",
	}))
}

func (t *TurnTransport) SendFileOffer(ctx context.Context, offer domain.FileOffer) error {
	return t.client.sendActivity(ctx, t.serviceURL, t.conversationID, t.replyToID, t.reply(Activity{
		Type: ActivityMessage,
		Attachments: []Attachment{{
			ContentType: fileConsentCardType,
			Name:        offer.Filename,
			Content: fileConsentCard{
				Description:    "Query results exported as an Excel workbook.",
				SizeInBytes:    offer.SizeBytes,
				AcceptContext:  domain.ConsentContext{Token: offer.Token},
				DeclineContext: domain.ConsentContext{Token: offer.Token},
			},
		}},
	}))
}

func (t *TurnTransport) SendFileConfirmation(ctx context.Context, confirmation domain.FileConfirmation) error {
	return t.client.sendActivity(ctx, t.serviceURL, t.conversationID, t.replyToID, t.reply(Activity{
		Type: ActivityMessage,
		Attachments: []Attachment{{
			ContentType: fileInfoCardType,
			ContentURL:  confirmation.ContentURL,
			Name:        confirmation.Filename,
			Content: fileInfoCard{
				UniqueID: confirmation.UniqueID,
				FileType: "xlsx",
			},
		}},
	}))
}

// Upload transmits the full artifact to the channel-issued destination in a
// single PUT with a whole-payload byte range. One attempt, bounded timeout.
func (t *TurnTransport) Upload(ctx context.Context, uploadURL string, data []byte) error {
	if len(data) == 0 {
		return errors.New("botframework: refusing to upload empty artifact")
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("botframework: create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", len(data)-1, len(data)))
	req.ContentLength = int64(len(data))

	res, err := t.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("botframework: upload failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: uploadURL, Body: string(buf)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}
