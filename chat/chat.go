// Package chat connects the command router to Twitch IRC. It maps badge tags
// to roles, forwards every message to the router, and sends replies back,
// threading them when the trigger message has an ID.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"

	"github.com/onnwee/chat-arcade/backend/bot"
	"github.com/onnwee/chat-arcade/backend/config"
	"github.com/onnwee/chat-arcade/backend/telemetry"
)

type Bot struct {
	client  *twitch.Client
	channel string
	router  *bot.Router
	ogUsers map[string]bool
}

func New(cfg *config.Config, router *bot.Router) *Bot {
	og := make(map[string]bool, len(cfg.OGUsers))
	for _, u := range cfg.OGUsers {
		og[strings.ToLower(u)] = true
	}
	return &Bot{
		client:  twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken),
		channel: cfg.TwitchChannel,
		router:  router,
		ogUsers: og,
	}
}

// rolesFor derives command permissions from the message badges plus the
// configured OG list.
func (b *Bot) rolesFor(msg twitch.PrivateMessage) bot.Roles {
	badges := msg.User.Badges
	return bot.Roles{
		Broadcaster: badges["broadcaster"] > 0,
		Moderator:   badges["moderator"] > 0,
		VIP:         badges["vip"] > 0,
		OG:          b.ogUsers[strings.ToLower(msg.User.Name)],
		Subscriber:  badges["subscriber"] > 0 || badges["founder"] > 0,
	}
}

// Say sends an unthreaded message to the channel. The scheduler uses this for
// event and poll announcements.
func (b *Bot) Say(text string) {
	if text != "" {
		b.client.Say(b.channel, text)
	}
}

// Run connects and blocks until ctx is cancelled or the connection fails.
func (b *Bot) Run(ctx context.Context) error {
	b.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		hctx = telemetry.WithCorrelation(hctx, uuid.NewString())

		reply := b.router.Handle(hctx, bot.Message{
			User:    msg.User.Name,
			Text:    msg.Message,
			ReplyID: msg.ID,
			Roles:   b.rolesFor(msg),
		})
		if reply == "" {
			return
		}
		if msg.ID != "" {
			b.client.Reply(b.channel, msg.ID, reply)
		} else {
			b.client.Say(b.channel, reply)
		}
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		b.client.Disconnect()
		close(done)
	}()

	b.client.Join(b.channel)
	if err := b.client.Connect(); err != nil && ctx.Err() == nil {
		slog.Error("twitch chat connect error", slog.Any("err", err))
		return err
	}
	<-done
	return nil
}
