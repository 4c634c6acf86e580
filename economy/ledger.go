// Package economy holds the chip ledger: per-user balances, the leaderboard
// mirror, wager placement, and the streak/cooldown/daily-bonus bookkeeping
// shared by every game.
//
// Balances live under one store key per user with a sorted-set mirror for
// top-N queries. Debit and PlaceBet are check-then-act over two store round
// trips; two concurrent wagers can both pass the check. That lost update is a
// designed race (synthetic currency, per-broadcast reset) and PlaceBet's
// clamp keeps any single write from driving a balance negative.
package economy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/onnwee/chat-arcade/backend/store"
	"github.com/onnwee/chat-arcade/backend/telemetry"
)

const (
	balancePrefix  = "chips:balance:"
	leaderboardKey = "chips:leaderboard"
)

type Ledger struct {
	Store         store.Store
	StartingStake int64
	DailyBonus    int64
	// Exclude lists usernames hidden from the leaderboard (bot accounts).
	Exclude []string
}

// Entry is one leaderboard row.
type Entry struct {
	User    string
	Balance int64
}

func balanceKey(user string) string { return balancePrefix + user }

// GetBalance returns the user's balance, initializing it to the starting
// stake (and seeding the leaderboard) on first touch.
func (l *Ledger) GetBalance(ctx context.Context, user string) (int64, error) {
	raw, ok, err := l.Store.Get(ctx, balanceKey(user))
	if err != nil {
		return 0, fmt.Errorf("get balance %s: %w", user, err)
	}
	if !ok {
		// SetNX so two concurrent first touches only seed once.
		created, err := l.Store.SetNX(ctx, balanceKey(user), strconv.FormatInt(l.StartingStake, 10), 0)
		if err != nil {
			return 0, fmt.Errorf("init balance %s: %w", user, err)
		}
		if created {
			if err := l.Store.ZSet(ctx, leaderboardKey, user, l.StartingStake); err != nil {
				return 0, fmt.Errorf("seed leaderboard %s: %w", user, err)
			}
			return l.StartingStake, nil
		}
		raw, _, err = l.Store.Get(ctx, balanceKey(user))
		if err != nil {
			return 0, fmt.Errorf("reread balance %s: %w", user, err)
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt balance %s=%q: %w", user, raw, err)
	}
	return n, nil
}

// Credit adds amount to the balance and mirrors the leaderboard. Amounts
// below 1 are a no-op and return the current balance.
func (l *Ledger) Credit(ctx context.Context, user string, amount int64) (int64, error) {
	if amount < 1 {
		return l.GetBalance(ctx, user)
	}
	// Force first-touch init so a credit never lands on a missing key.
	if _, err := l.GetBalance(ctx, user); err != nil {
		return 0, err
	}
	newBal, err := l.Store.Incr(ctx, balanceKey(user), amount)
	if err != nil {
		return 0, fmt.Errorf("credit %s: %w", user, err)
	}
	if err := l.Store.ZSet(ctx, leaderboardKey, user, newBal); err != nil {
		return 0, fmt.Errorf("mirror leaderboard %s: %w", user, err)
	}
	return newBal, nil
}

// Debit subtracts amount if the balance covers it. On insufficient funds it
// returns ok=false with the current balance and writes nothing. The check and
// the write are separate round trips; see the package comment.
func (l *Ledger) Debit(ctx context.Context, user string, amount int64) (bool, int64, error) {
	cur, err := l.GetBalance(ctx, user)
	if err != nil {
		return false, 0, err
	}
	if amount < 1 || cur < amount {
		return false, cur, nil
	}
	newBal := cur - amount
	if err := l.write(ctx, user, newBal); err != nil {
		return false, cur, err
	}
	return true, newBal, nil
}

// PlaceBet clamps the requested wager to the available balance and debits
// that, so a stale read never produces a negative write. bet==0 means the
// user is broke.
func (l *Ledger) PlaceBet(ctx context.Context, user string, requested int64) (bet, after int64, err error) {
	cur, err := l.GetBalance(ctx, user)
	if err != nil {
		return 0, 0, err
	}
	bet = requested
	if bet > cur {
		bet = cur
	}
	if bet < 1 {
		return 0, cur, nil
	}
	after = cur - bet
	if err := l.write(ctx, user, after); err != nil {
		return 0, cur, err
	}
	telemetry.ChipsBet(bet)
	return bet, after, nil
}

func (l *Ledger) write(ctx context.Context, user string, balance int64) error {
	if err := l.Store.Set(ctx, balanceKey(user), strconv.FormatInt(balance, 10), 0); err != nil {
		return fmt.Errorf("write balance %s: %w", user, err)
	}
	if err := l.Store.ZSet(ctx, leaderboardKey, user, balance); err != nil {
		return fmt.Errorf("mirror leaderboard %s: %w", user, err)
	}
	return nil
}

// TopN returns the highest n balances, skipping excluded accounts.
func (l *Ledger) TopN(ctx context.Context, n int) ([]Entry, error) {
	// Over-fetch so exclusions don't shrink the page.
	top, err := l.Store.ZTop(ctx, leaderboardKey, n+len(l.Exclude))
	if err != nil {
		return nil, fmt.Errorf("leaderboard top: %w", err)
	}
	excluded := make(map[string]bool, len(l.Exclude))
	for _, u := range l.Exclude {
		excluded[u] = true
	}
	out := make([]Entry, 0, n)
	for _, z := range top {
		if excluded[z.Member] {
			continue
		}
		out = append(out, Entry{User: z.Member, Balance: z.Score})
		if len(out) == n {
			break
		}
	}
	return out, nil
}

// TryCooldown attempts to start a cooldown for scope+user. It reports true
// when the action is allowed (no cooldown was running); the store TTL clears
// it without any reaper.
func (l *Ledger) TryCooldown(ctx context.Context, scope, user string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}
	ok, err := l.Store.SetNX(ctx, "cd:"+scope+":"+user, "1", ttl)
	if err != nil {
		return false, fmt.Errorf("cooldown %s/%s: %w", scope, user, err)
	}
	return ok, nil
}
