package accounts

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes reset tokens to the debug log. It is the delivery used
// when no mail transport is configured.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.Log.Debug().Str("email", email).Str("reset_token", token).Msg("password reset token issued")
	return nil
}
