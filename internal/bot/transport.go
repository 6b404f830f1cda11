package bot

import (
	"context"

	"genie-bot/internal/domain"
)

// Transport delivers replies for a single inbound channel event. A bound
// transport is handed to the bot per turn by the channel adapter.
type Transport interface {
	SendText(ctx context.Context, text string) error
	SendFileOffer(ctx context.Context, offer domain.FileOffer) error
	SendFileConfirmation(ctx context.Context, confirmation domain.FileConfirmation) error
	// Upload transmits the full artifact to the channel-issued destination
	// in a single request. Implementations must bound this call with a
	// timeout; there is no retry above it.
	Upload(ctx context.Context, uploadURL string, data []byte) error
}
