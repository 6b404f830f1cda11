package domain

// FileConsentInvokeName is the invoke activity name Teams uses for file
// consent card responses.
const FileConsentInvokeName = "fileConsent/invoke"

// File consent actions.
const (
	ConsentAccept  = "accept"
	ConsentDecline = "decline"
)

// MessageEvent is an inbound user message.
type MessageEvent struct {
	UserID string
	Text   string
}

// InvokeEvent is an inbound invoke activity. FileConsent is set only when the
// invoke carries a file consent card response.
type InvokeEvent struct {
	UserID      string
	Name        string
	FileConsent *FileConsentValue
}

// FileConsentValue is the payload of a file consent invoke.
type FileConsentValue struct {
	Action     string
	Context    ConsentContext
	UploadInfo *UploadInfo
}

// ConsentContext round-trips the export cache token through the consent card.
type ConsentContext struct {
	Token string `json:"token"`
}

// UploadInfo is the upload destination issued by the channel on accept.
type UploadInfo struct {
	Name      string
	UploadURL string
	// ContentURL and UniqueID identify the stored file for the
	// confirmation card.
	ContentURL string
	UniqueID   string
}

// MembersAddedEvent signals members joining the conversation.
type MembersAddedEvent struct {
	MemberIDs   []string
	RecipientID string
}

// FileOffer asks the user for consent to receive a file.
type FileOffer struct {
	Filename  string
	SizeBytes int64
	Token     string
}

// FileConfirmation marks an uploaded file as delivered so the channel renders
// it.
type FileConfirmation struct {
	Filename   string
	ContentURL string
	UniqueID   string
}
