package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ManuelReschke/ChannelPass/internal/pkg/gateway"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
)

func apiError(err error) (*tgbotapi.Error, bool) {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr, true
	}
	return nil, false
}

// isNotMember reports the errors Telegram returns when removing someone who
// is not in the chat.
func isNotMember(err error) bool {
	tgErr, ok := apiError(err)
	if !ok || tgErr.Code != 400 {
		return false
	}
	msg := strings.ToLower(tgErr.Message)
	return strings.Contains(msg, "user not found") ||
		strings.Contains(msg, "participant_id_invalid") ||
		strings.Contains(msg, "not a member")
}

// gatewayError marks rate limits, server errors and network failures as
// transient. Everything else is permanent for the gateway.
func gatewayError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	tgErr, ok := apiError(err)
	if !ok {
		return gateway.Transient(err)
	}
	if tgErr.Code == 429 || tgErr.Code >= 500 {
		return gateway.Transient(err)
	}
	return fmt.Errorf("telegram %d: %w", tgErr.Code, err)
}

// senderError maps Bot API failures onto the messaging error classes.
func senderError(err error) error {
	if err == nil {
		return nil
	}
	tgErr, ok := apiError(err)
	if !ok {
		return err
	}
	msg := strings.ToLower(tgErr.Message)
	switch {
	case tgErr.Code == 429:
		return &messaging.ThrottledError{RetryAfter: time.Duration(tgErr.RetryAfter) * time.Second}
	case tgErr.Code == 403:
		return fmt.Errorf("%w: %s", messaging.ErrRecipientUnavailable, tgErr.Message)
	case tgErr.Code == 400 && strings.Contains(msg, "chat not found"):
		return fmt.Errorf("%w: %s", messaging.ErrRecipientUnavailable, tgErr.Message)
	case tgErr.Code == 400 && (strings.Contains(msg, "can't parse entities") || strings.Contains(msg, "message is too long")):
		return fmt.Errorf("%w: %s", messaging.ErrPayloadRejected, tgErr.Message)
	default:
		return fmt.Errorf("telegram %d: %w", tgErr.Code, err)
	}
}
