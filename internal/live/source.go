package live

import (
	"context"

	"github.com/okian/requestline/internal/domain/model"
)

// Source opens streams of interaction events from the external live
// platform. Connect must honor ctx for cancellation mid-handshake.
type Source interface {
	Connect(ctx context.Context, host string) (Stream, error)
}

// Stream is one open connection to the source. Events is closed when the
// external link is lost; Close tears the link down from our side.
type Stream interface {
	Events() <-chan model.InteractionEvent
	Close() error
}
