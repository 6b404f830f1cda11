package botframework

import (
	"encoding/json"
	"fmt"

	"genie-bot/internal/domain"
)

// Activity types handled by the bot.
const (
	ActivityMessage            = "message"
	ActivityInvoke             = "invoke"
	ActivityConversationUpdate = "conversationUpdate"
)

// Teams card content types used by the file transfer handshake.
const (
	fileConsentCardType = "application/vnd.microsoft.teams.card.file.consent"
	fileInfoCardType    = "application/vnd.microsoft.teams.card.file.info"
)

// Activity is the Bot Framework wire shape, reduced to the fields this bot
// reads and writes.
type Activity struct {
	Type         string               `json:"type"`
	ID           string               `json:"id,omitempty"`
	Name         string               `json:"name,omitempty"`
	Text         string               `json:"text,omitempty"`
	TextFormat   string               `json:"textFormat,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	From         *ChannelAccount      `json:"from,omitempty"`
	Recipient    *ChannelAccount      `json:"recipient,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	MembersAdded []ChannelAccount     `json:"membersAdded,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
	Attachments  []Attachment         `json:"attachments,omitempty"`
	Value        json.RawMessage      `json:"value,omitempty"`
}

type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type ConversationAccount struct {
	ID string `json:"id"`
}

type Attachment struct {
	ContentType string `json:"contentType"`
	ContentURL  string `json:"contentUrl,omitempty"`
	Name        string `json:"name,omitempty"`
	Content     any    `json:"content,omitempty"`
}

// fileConsentCard is the consent request card content.
type fileConsentCard struct {
	Description    string                `json:"description"`
	SizeInBytes    int64                 `json:"sizeInBytes"`
	AcceptContext  domain.ConsentContext `json:"acceptContext"`
	DeclineContext domain.ConsentContext `json:"declineContext"`
}

// fileInfoCard is the delivered-file card content.
type fileInfoCard struct {
	UniqueID string `json:"uniqueId"`
	FileType string `json:"fileType"`
}

// fileConsentValue is the invoke payload Teams sends when the user responds
// to a consent card.
type fileConsentValue struct {
	Action     string                `json:"action"`
	Context    domain.ConsentContext `json:"context"`
	UploadInfo *uploadInfoPayload    `json:"uploadInfo"`
}

type uploadInfoPayload struct {
	Name       string `json:"name"`
	UploadURL  string `json:"uploadUrl"`
	ContentURL string `json:"contentUrl"`
	UniqueID   string `json:"uniqueId"`
	FileType   string `json:"fileType"`
}

// UserID returns the sender id, or empty when absent.
func (a Activity) UserID() string {
	if a.From == nil {
		return ""
	}
	return a.From.ID
}

// DecodeFileConsent extracts the typed consent value from an invoke
// activity. Invokes with a different name return nil without error so they
// can pass through to default handling.
func DecodeFileConsent(a Activity) (*domain.FileConsentValue, error) {
	if a.Name != domain.FileConsentInvokeName || len(a.Value) == 0 {
		return nil, nil
	}
	var value fileConsentValue
	if err := json.Unmarshal(a.Value, &value); err != nil {
		return nil, fmt.Errorf("botframework: decode file consent value: %w", err)
	}
	out := &domain.FileConsentValue{
		Action:  value.Action,
		Context: value.Context,
	}
	if value.UploadInfo != nil {
		out.UploadInfo = &domain.UploadInfo{
			Name:       value.UploadInfo.Name,
			UploadURL:  value.UploadInfo.UploadURL,
			ContentURL: value.UploadInfo.ContentURL,
			UniqueID:   value.UploadInfo.UniqueID,
		}
	}
	return out, nil
}
