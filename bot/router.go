// Package bot routes incoming chat messages to the game engines. Every
// message first passes the passive triggers (poll votes, event keywords)
// before the "!" command parse, so typing a raffle keyword never needs a
// prefix. Store errors surface as empty replies; a flaky backend should make
// the bot quiet, not noisy.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/chat-arcade/backend/blackjack"
	"github.com/onnwee/chat-arcade/backend/config"
	"github.com/onnwee/chat-arcade/backend/economy"
	"github.com/onnwee/chat-arcade/backend/events"
	"github.com/onnwee/chat-arcade/backend/games"
	"github.com/onnwee/chat-arcade/backend/poll"
	"github.com/onnwee/chat-arcade/backend/store"
	"github.com/onnwee/chat-arcade/backend/telemetry"
)

// Roles carries the badge-derived permissions of the message author.
type Roles struct {
	Broadcaster bool
	Moderator   bool
	VIP         bool
	OG          bool
	Subscriber  bool
}

// Message is one inbound chat line, already normalized to lowercase username.
type Message struct {
	User    string
	Text    string
	ReplyID string
	Roles   Roles
}

type Router struct {
	Cfg       *config.Config
	Store     store.Store
	Ledger    *economy.Ledger
	Blackjack *blackjack.Service
	Games     *games.Service
	Polls     *poll.Engine
	Events    *events.Manager
	Now       func() time.Time
}

func (r *Router) clock() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// gamblingOn reads the runtime toggle, falling back to the env default. The
// store key lets mods flip gambling off mid-stream without a restart.
func (r *Router) gamblingOn(ctx context.Context) bool {
	raw, ok, err := r.Store.Get(ctx, "cfg:GAMBLING_ENABLED")
	if err != nil || !ok {
		return r.Cfg.GamblingEnabled
	}
	return raw != "false" && raw != "0"
}

func (r *Router) canStartPoll(roles Roles) bool {
	switch {
	case roles.Broadcaster:
		return true
	case roles.Moderator:
		return r.Cfg.PollStartMod
	case roles.VIP:
		return r.Cfg.PollStartVIP
	case roles.OG:
		return r.Cfg.PollStartOG
	case roles.Subscriber:
		return r.Cfg.PollStartSub
	}
	return false
}

func isMod(roles Roles) bool { return roles.Broadcaster || roles.Moderator }

// Handle processes one chat message and returns the reply to send, if any.
// Errors are logged and swallowed so a store hiccup drops a message instead of
// spamming chat.
func (r *Router) Handle(ctx context.Context, msg Message) string {
	reply, err := r.dispatch(ctx, msg)
	if err != nil {
		slog.Error("message dropped", "user", msg.User, "err", err)
		telemetry.CommandHandled("error")
		return ""
	}
	if reply != "" {
		telemetry.CommandHandled("replied")
	}
	return reply
}

func (r *Router) dispatch(ctx context.Context, msg Message) (string, error) {
	user := strings.ToLower(msg.User)
	text := strings.TrimSpace(msg.Text)
	if user == "" || text == "" {
		return "", nil
	}

	// Daily bonus rides along on any activity.
	if bonus, err := r.Ledger.ClaimDaily(ctx, user, r.clock()); err != nil {
		return "", err
	} else if bonus > 0 {
		telemetry.ChipsPaid(bonus)
	}

	if !strings.HasPrefix(text, "!") {
		return r.passive(ctx, user, text)
	}

	fields := strings.Fields(text)
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "!"))
	args := fields[1:]

	switch cmd {
	case "chips", "balance":
		bal, err := r.Ledger.GetBalance(ctx, user)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s you have %d chips", user, bal), nil

	case "top", "leaderboard":
		return r.topReply(ctx)

	case "deal":
		if !r.gamblingOn(ctx) {
			return "", nil
		}
		telemetry.GamePlayed("blackjack")
		return r.Blackjack.Deal(ctx, user, amountArg(args, 0))
	case "hit":
		return r.Blackjack.Hit(ctx, user)
	case "stand":
		return r.Blackjack.Stand(ctx, user)
	case "double":
		return r.Blackjack.Double(ctx, user)
	case "split":
		return r.Blackjack.Split(ctx, user)

	case "coinflip", "flip":
		return r.instant(ctx, "coinflip", func() (string, error) {
			return r.Games.Coinflip(ctx, user, amountArg(args, 0))
		})
	case "slots":
		return r.instant(ctx, "slots", func() (string, error) {
			return r.Games.Slots(ctx, user, amountArg(args, 0))
		})
	case "roulette":
		if len(args) < 1 {
			return "usage: !roulette <red|black|1-36> [amount]", nil
		}
		return r.instant(ctx, "roulette", func() (string, error) {
			return r.Games.Roulette(ctx, user, args[0], amountArg(args[1:], 0))
		})
	case "dice":
		if len(args) < 1 {
			return "usage: !dice <high|low> [amount]", nil
		}
		return r.instant(ctx, "dice", func() (string, error) {
			return r.Games.Dice(ctx, user, args[0], amountArg(args[1:], 0))
		})
	case "crash":
		target := 0.0
		if len(args) >= 2 {
			target, _ = strconv.ParseFloat(args[1], 64)
		}
		return r.instant(ctx, "crash", func() (string, error) {
			return r.Games.Crash(ctx, user, amountArg(args, 0), target)
		})
	case "war":
		return r.instant(ctx, "war", func() (string, error) {
			return r.Games.War(ctx, user, amountArg(args, 0))
		})

	case "duel":
		if len(args) < 1 {
			return "usage: !duel <user> [amount]", nil
		}
		if !r.gamblingOn(ctx) {
			return "", nil
		}
		target := strings.ToLower(strings.TrimPrefix(args[0], "@"))
		telemetry.GamePlayed("duel")
		return r.Games.Duel(ctx, user, target, amountArg(args[1:], 0))
	case "accept":
		return r.Games.Accept(ctx, user)

	case "heist":
		if !r.gamblingOn(ctx) {
			return "", nil
		}
		telemetry.GamePlayed("heist")
		return r.Events.JoinHeist(ctx, user, amountArg(args, 0))

	case "poll", "rank":
		rest := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
		// Bare !poll is a status query open to everyone.
		if rest == "" {
			return r.Polls.StatusLine(ctx)
		}
		if !r.canStartPoll(msg.Roles) {
			return "", nil
		}
		question, options := parsePoll(rest)
		return r.Polls.Start(ctx, question, options, r.Cfg.PollDefaultDuration, msg.ReplyID)
	case "pollstatus":
		return r.Polls.StatusLine(ctx)
	case "endpoll":
		if !isMod(msg.Roles) {
			return "", nil
		}
		return r.Polls.ForceEnd(ctx)

	case "raffle":
		if !isMod(msg.Roles) {
			return "", nil
		}
		if len(args) < 1 {
			return "usage: !raffle <keyword> [prize]", nil
		}
		return r.Events.StartRaffle(ctx, args[0], amountArg(args[1:], 0))
	case "chipdrop":
		if !isMod(msg.Roles) {
			return "", nil
		}
		if len(args) < 1 {
			return "usage: !chipdrop <keyword> [pot]", nil
		}
		return r.Events.StartChipDrop(ctx, args[0], amountArg(args[1:], 0))
	case "challenge":
		if !isMod(msg.Roles) {
			return "", nil
		}
		return r.Events.StartChallenge(ctx, int(amountArg(args, 0)))
	case "boss":
		if !isMod(msg.Roles) {
			return "", nil
		}
		return r.Events.StartBoss(ctx, amountArg(args, 0))
	}

	// Unknown commands stay silent; another bot may own them.
	return "", nil
}

// passive handles non-command messages: an overdue poll ends lazily first,
// then poll votes, then event triggers. A message can be both a vote and an
// event entry.
func (r *Router) passive(ctx context.Context, user, text string) (string, error) {
	ended, err := r.Polls.Tick(ctx)
	if err != nil {
		return "", err
	}
	if _, err := r.Polls.Vote(ctx, user, text); err != nil {
		return "", err
	}
	reply, err := r.Events.HandleMessage(ctx, user, text)
	if err != nil || reply != "" {
		return reply, err
	}
	if len(ended) > 0 {
		return strings.Join(ended, " | "), nil
	}
	return "", nil
}

// instant wraps the quick wager games with the gambling toggle and metrics.
func (r *Router) instant(ctx context.Context, game string, play func() (string, error)) (string, error) {
	if !r.gamblingOn(ctx) {
		return "", nil
	}
	telemetry.GamePlayed(game)
	return play()
}

func (r *Router) topReply(ctx context.Context) (string, error) {
	top, err := r.Ledger.TopN(ctx, 5)
	if err != nil {
		return "", err
	}
	if len(top) == 0 {
		return "nobody has chips yet", nil
	}
	parts := make([]string, len(top))
	for i, e := range top {
		parts[i] = fmt.Sprintf("%d. %s (%d)", i+1, e.User, e.Balance)
	}
	return "🏆 " + strings.Join(parts, " | "), nil
}

// amountArg parses the first arg as a chip amount, returning def when absent
// or unparsable. Negative amounts are treated as absent.
func amountArg(args []string, def int64) int64 {
	if len(args) == 0 {
		return def
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// parsePoll splits "!poll Best snack? chips, salsa, queso" into question and
// options. The question ends at the first "?"; options split on commas.
func parsePoll(rest string) (string, []string) {
	q, opts, found := strings.Cut(rest, "?")
	if !found {
		return "", nil
	}
	question := strings.TrimSpace(q) + "?"
	var options []string
	for _, o := range strings.Split(opts, ",") {
		if o = strings.TrimSpace(o); o != "" {
			options = append(options, o)
		}
	}
	return question, options
}
