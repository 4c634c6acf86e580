package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/chat-arcade/backend/store"
)

type raffle struct {
	Keyword      string        `json:"keyword"`
	Prize        int64         `json:"prize"`
	Participants []string      `json:"participants"`
	StartedAt    time.Time     `json:"started_at"`
	Window       time.Duration `json:"window"`
}

// StartRaffle opens a raffle entered by typing the keyword. One winner takes
// the prize. Zero prize falls back to the configured default.
func (m *Manager) StartRaffle(ctx context.Context, keyword string, prize int64) (string, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" || strings.HasPrefix(keyword, "!") {
		return "usage: !raffle <keyword> [prize]", nil
	}
	if prize <= 0 {
		prize = m.Cfg.RafflePrize
	}
	r := raffle{Keyword: keyword, Prize: prize, StartedAt: m.clock(), Window: m.Cfg.RaffleWindow}
	created, err := marshalNX(ctx, m.Store, raffleKey, r, m.Cfg.RaffleWindow+ttlSlack)
	if err != nil {
		return "", err
	}
	if !created {
		return "a raffle is already running", nil
	}
	return fmt.Sprintf("🎟️ RAFFLE! type %q in the next %ds for a shot at %d chips",
		keyword, int(m.Cfg.RaffleWindow.Seconds()), prize), nil
}

// marshalNX writes v under key only if absent.
func marshalNX(ctx context.Context, s store.Store, key string, v any, ttl time.Duration) (bool, error) {
	raw, err := jsonMarshal(v)
	if err != nil {
		return false, err
	}
	return s.SetNX(ctx, key, raw, ttl)
}

func (m *Manager) handleRaffleMessage(ctx context.Context, user, text string) (string, error) {
	var r raffle
	ok, err := store.GetJSON(ctx, m.Store, raffleKey, &r)
	if err != nil || !ok {
		return "", err
	}
	if m.clock().Sub(r.StartedAt) > r.Window {
		return m.resolveRaffle(ctx, &r)
	}
	if !strings.EqualFold(strings.TrimSpace(text), r.Keyword) {
		return "", nil
	}
	for _, p := range r.Participants {
		if p == user {
			return "", nil
		}
	}
	r.Participants = append(r.Participants, user)
	// Entries are silent; announcing each one would drown the chat.
	return "", store.SetJSON(ctx, m.Store, raffleKey, &r, r.Window+ttlSlack)
}

func (m *Manager) resolveDueRaffle(ctx context.Context) (string, error) {
	var r raffle
	ok, err := store.GetJSON(ctx, m.Store, raffleKey, &r)
	if err != nil || !ok {
		return "", err
	}
	if m.clock().Sub(r.StartedAt) <= r.Window {
		return "", nil
	}
	return m.resolveRaffle(ctx, &r)
}

func (m *Manager) resolveRaffle(ctx context.Context, r *raffle) (string, error) {
	claimed, err := m.claim(ctx, raffleKey)
	if err != nil || !claimed {
		return "", err
	}
	if len(r.Participants) == 0 {
		return "🎟️ the raffle closes with no entries", nil
	}
	winner := r.Participants[m.intn(len(r.Participants))]
	if _, err := m.Ledger.Credit(ctx, winner, r.Prize); err != nil {
		return "", err
	}
	return fmt.Sprintf("🎟️ the raffle is over — %s wins %d chips! (%d entered)",
		winner, r.Prize, len(r.Participants)), nil
}
