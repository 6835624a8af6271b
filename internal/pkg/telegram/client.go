// Package telegram implements the channel access gateway and the message
// senders on top of the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/config"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
)

// Client talks to the Bot API. It is a gateway.Gateway, a messaging.Sender
// and a messaging.BroadcastSender.
type Client struct {
	bot *tgbotapi.BotAPI
}

// New connects with the configured token and verifies it with getMe.
func New(cfg config.TelegramConfig) (*Client, error) {
	return NewWithEndpoint(cfg, tgbotapi.APIEndpoint)
}

// NewWithEndpoint is New against another Bot API server. endpoint is a
// format string taking the token and the method, like tgbotapi.APIEndpoint.
func NewWithEndpoint(cfg config.TelegramConfig, endpoint string) (*Client, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("connect bot: %w", err)
	}
	log.Infof("[Telegram] Authorized as @%s", bot.Self.UserName)
	return &Client{bot: bot}, nil
}

// Grant lifts a ban so the user can join again. Users that were never banned
// are left alone.
func (c *Client) Grant(ctx context.Context, userID, chatID int64) error {
	cfg := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		OnlyIfBanned:     true,
	}
	return gatewayError(c.request(ctx, cfg))
}

// Revoke removes the user from the chat: a ban followed by an unban, so a
// later payment lets the user rejoin through the invite link.
func (c *Client) Revoke(ctx context.Context, userID, chatID int64) error {
	member := tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID}
	err := c.request(ctx, tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: member,
		UntilDate:        time.Now().Add(time.Minute).Unix(),
	})
	if err != nil {
		if isNotMember(err) {
			return nil
		}
		return gatewayError(err)
	}
	return gatewayError(c.request(ctx, tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true}))
}

// Send renders n in the user's language and delivers it.
func (c *Client) Send(ctx context.Context, n messaging.Notification) error {
	msg := tgbotapi.NewMessage(n.UserID, Render(n))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return senderError(c.send(ctx, msg))
}

// SendBroadcast delivers one broadcast payload to userID.
func (c *Client) SendBroadcast(ctx context.Context, userID int64, payload models.BroadcastPayload) error {
	msg := tgbotapi.NewMessage(userID, payload.Text)
	msg.ParseMode = payload.ParseMode
	msg.DisableWebPagePreview = payload.DisableWebPagePreview
	return senderError(c.send(ctx, msg))
}

func (c *Client) request(ctx context.Context, chattable tgbotapi.Chattable) error {
	return withContext(ctx, func() error {
		_, err := c.bot.Request(chattable)
		return err
	})
}

func (c *Client) send(ctx context.Context, chattable tgbotapi.Chattable) error {
	return withContext(ctx, func() error {
		_, err := c.bot.Send(chattable)
		return err
	})
}

// withContext returns when fn finishes or ctx ends, whichever comes first.
// The Bot API client has no context support; its HTTP timeout bounds fn.
func withContext(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
