package games

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/chat-arcade/backend/store"
)

const (
	duelPrefix = "duel:pending:"
	// How long the target has to !accept.
	duelWindow = 60 * time.Second
	// Store TTL backstop; the refund path needs the record to outlive the
	// logical window so a late read can return the escrow.
	duelTTL = 10 * time.Minute
)

// pendingDuel holds the challenger's escrowed wager, keyed by target user.
type pendingDuel struct {
	Challenger string    `json:"challenger"`
	Target     string    `json:"target"`
	Bet        int64     `json:"bet"`
	CreatedAt  time.Time `json:"created_at"`
}

func duelKey(target string) string { return duelPrefix + target }

// loadDuel returns the live pending duel for target, refunding and clearing
// an expired one. Expiry is lazy; if nobody ever reads the key the store TTL
// collects it and the escrow is forfeited, same as an abandoned hand.
func (s *Service) loadDuel(ctx context.Context, target string) (*pendingDuel, error) {
	var d pendingDuel
	ok, err := store.GetJSON(ctx, s.Store, duelKey(target), &d)
	if err != nil || !ok {
		return nil, err
	}
	if s.clock().Sub(d.CreatedAt) > duelWindow {
		// Delete first so only one reader runs the refund.
		existed, err := s.Store.Del(ctx, duelKey(target))
		if err != nil {
			return nil, err
		}
		if existed {
			if _, err := s.Ledger.Credit(ctx, d.Challenger, d.Bet); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	return &d, nil
}

// Duel escrows the challenger's wager and records a pending duel against the
// target, who has the duel window to !accept.
func (s *Service) Duel(ctx context.Context, challenger, target string, amount int64) (string, error) {
	target = strings.ToLower(strings.TrimPrefix(target, "@"))
	if target == "" || amount < 1 {
		return fmt.Sprintf("@%s usage: !duel @user <amount>", challenger), nil
	}
	if target == challenger {
		return fmt.Sprintf("@%s you can't duel yourself", challenger), nil
	}
	existing, err := s.loadDuel(ctx, target)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return fmt.Sprintf("@%s %s already has a duel pending", challenger, target), nil
	}
	ok, err := s.Ledger.TryCooldown(ctx, "game", challenger, s.Cooldown)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("@%s slow down a little", challenger), nil
	}
	bet, _, err := s.Ledger.PlaceBet(ctx, challenger, amount)
	if err != nil {
		return "", err
	}
	if bet == 0 {
		return fmt.Sprintf("@%s you're out of chips", challenger), nil
	}
	d := pendingDuel{Challenger: challenger, Target: target, Bet: bet, CreatedAt: s.clock()}
	if err := store.SetJSON(ctx, s.Store, duelKey(target), d, duelTTL); err != nil {
		return "", err
	}
	return fmt.Sprintf("@%s — %s challenges you to a duel for %d chips! type !accept within %ds",
		target, challenger, bet, int(duelWindow.Seconds())), nil
}

// Accept resolves a pending duel against the caller: the target's matching
// wager is debited, a 50/50 roll decides it, and the winner takes the pot.
func (s *Service) Accept(ctx context.Context, user string) (string, error) {
	d, err := s.loadDuel(ctx, user)
	if err != nil {
		return "", err
	}
	if d == nil {
		return fmt.Sprintf("@%s nobody has challenged you", user), nil
	}
	ok, bal, err := s.Ledger.Debit(ctx, user, d.Bet)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("@%s you need %d chips to accept (you have %d)", user, d.Bet, bal), nil
	}
	// Claim the record before paying out so a racing accept no-ops.
	existed, err := s.Store.Del(ctx, duelKey(user))
	if err != nil {
		return "", err
	}
	if !existed {
		// Lost the claim race; undo our debit.
		if _, err := s.Ledger.Credit(ctx, user, d.Bet); err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s that duel was already settled", user), nil
	}

	pot := 2 * d.Bet
	winner, loser := d.Challenger, user
	if s.intn(2) == 0 {
		winner, loser = user, d.Challenger
	}
	newBal, err := s.Ledger.Credit(ctx, winner, pot)
	if err != nil {
		return "", err
	}
	if _, _, err := s.Ledger.RecordWin(ctx, winner); err != nil {
		return "", err
	}
	if _, _, err := s.Ledger.RecordLoss(ctx, loser); err != nil {
		return "", err
	}
	return fmt.Sprintf("⚔️ %s defeats %s and takes the %d-chip pot! (%d chips)", winner, loser, pot, newBal), nil
}
