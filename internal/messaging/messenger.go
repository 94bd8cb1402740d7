package messaging

import (
	"context"
	"log/slog"
)

// Messenger delivers one outbound SMS. Call sites treat delivery as
// fire-and-forget: a send failure is logged, never propagated to the
// rider whose turn triggered it.
type Messenger interface {
	Send(ctx context.Context, toPhone, body string) error
}

// LogMessenger writes messages to the log instead of a provider.
// Used for local runs when no Twilio credentials are configured.
type LogMessenger struct {
	Logger *slog.Logger
}

func (l *LogMessenger) Send(ctx context.Context, toPhone, body string) error {
	l.Logger.Info("outbound_message", "to", toPhone, "body", body)
	return nil
}

// Tee forwards to the primary messenger and mirrors every message to
// the websocket ops feed so operators can watch traffic live.
type Tee struct {
	Primary Messenger
	Feed    *WSRegistry
}

func (t *Tee) Send(ctx context.Context, toPhone, body string) error {
	if t.Feed != nil {
		t.Feed.Broadcast(OutboundMessage{To: toPhone, Body: body})
	}
	return t.Primary.Send(ctx, toPhone, body)
}
