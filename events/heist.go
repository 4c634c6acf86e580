package events

import (
	"context"
	"fmt"
	"time"

	"github.com/onnwee/chat-arcade/backend/store"
)

type heistMember struct {
	User string `json:"user"`
	Bet  int64  `json:"bet"`
}

type heist struct {
	Members   []heistMember `json:"members"`
	StartedAt time.Time     `json:"started_at"`
	Window    time.Duration `json:"window"`
}

const defaultHeistBet = 50

// Success odds grow with crew size but cap out; a lone wolf is a long shot.
func heistOdds(crew int) float64 {
	odds := 0.2 + 0.1*float64(crew)
	if odds > 0.8 {
		odds = 0.8
	}
	return odds
}

// JoinHeist starts a heist if none is running and buys the caller in with a
// clamped wager. On success every member is paid their bet times a random
// multiplier, floored.
func (m *Manager) JoinHeist(ctx context.Context, user string, amount int64) (string, error) {
	if amount <= 0 {
		amount = defaultHeistBet
	}
	var h heist
	ok, err := store.GetJSON(ctx, m.Store, heistKey, &h)
	if err != nil {
		return "", err
	}
	if ok && m.clock().Sub(h.StartedAt) > h.Window {
		// Window elapsed; resolve the old crew before anything else.
		return m.resolveHeist(ctx, &h)
	}
	if ok {
		for _, mem := range h.Members {
			if mem.User == user {
				return fmt.Sprintf("@%s you're already in the crew", user), nil
			}
		}
	}
	bet, _, err := m.Ledger.PlaceBet(ctx, user, amount)
	if err != nil {
		return "", err
	}
	if bet == 0 {
		return fmt.Sprintf("@%s you need chips to join a heist", user), nil
	}
	if !ok {
		h = heist{StartedAt: m.clock(), Window: m.Cfg.HeistWindow}
		h.Members = []heistMember{{User: user, Bet: bet}}
		created, err := marshalNX(ctx, m.Store, heistKey, h, h.Window+ttlSlack)
		if err != nil {
			return "", err
		}
		if created {
			return fmt.Sprintf("🚐 %s is planning a heist! !heist [amt] to join, doors close in %ds",
				user, int(h.Window.Seconds())), nil
		}
		// Someone else created it between our read and write; re-read and
		// join their crew instead.
		h = heist{}
		ok, err = store.GetJSON(ctx, m.Store, heistKey, &h)
		if err != nil {
			return "", err
		}
		if !ok {
			// Gone again already (resolved between the failed write and the
			// re-read); reviving it would double-count the caller.
			if _, err := m.Ledger.Credit(ctx, user, bet); err != nil {
				return "", err
			}
			return fmt.Sprintf("@%s the crew already took off — bet returned", user), nil
		}
	}
	h.Members = append(h.Members, heistMember{User: user, Bet: bet})
	if err := store.SetJSON(ctx, m.Store, heistKey, &h, h.Window+ttlSlack); err != nil {
		return "", err
	}
	return fmt.Sprintf("@%s joins the heist crew with %d chips (%d in)", user, bet, len(h.Members)), nil
}

func (m *Manager) resolveDueHeist(ctx context.Context) (string, error) {
	var h heist
	ok, err := store.GetJSON(ctx, m.Store, heistKey, &h)
	if err != nil || !ok {
		return "", err
	}
	if m.clock().Sub(h.StartedAt) <= h.Window {
		return "", nil
	}
	return m.resolveHeist(ctx, &h)
}

func (m *Manager) resolveHeist(ctx context.Context, h *heist) (string, error) {
	claimed, err := m.claim(ctx, heistKey)
	if err != nil || !claimed {
		return "", err
	}
	if len(h.Members) == 0 {
		return "", nil
	}
	if m.float() >= heistOdds(len(h.Members)) {
		return fmt.Sprintf("🚨 the heist failed — %d crew member(s) walk away empty-handed", len(h.Members)), nil
	}
	// 1.5x to 3x, proportional to each member's buy-in, floored.
	mult := 1.5 + 1.5*m.float()
	var total int64
	for _, mem := range h.Members {
		payout := int64(float64(mem.Bet) * mult)
		total += payout
		if _, err := m.Ledger.Credit(ctx, mem.User, payout); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("💰 the heist succeeds! %d crew member(s) split %d chips (%.1fx)",
		len(h.Members), total, mult), nil
}
