// Package games implements the instant-resolution wager games. Every game
// follows one template: validate args, take the shared per-user cooldown,
// place a clamped bet, draw a random outcome, credit winnings, and reply with
// the post-round balance. Streak counters feed milestone bonuses.
package games

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/onnwee/chat-arcade/backend/blackjack"
	"github.com/onnwee/chat-arcade/backend/economy"
	"github.com/onnwee/chat-arcade/backend/store"
)

type Service struct {
	Ledger   *economy.Ledger
	Store    store.Store
	Cooldown time.Duration // short global per-user instant-game cooldown
	Rand     *rand.Rand
	Now      func() time.Time

	mu sync.Mutex
}

func (s *Service) clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Rand.Intn(n)
}

func (s *Service) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Rand.Float64()
}

// begin runs the shared preamble: cooldown then clamped bet. A non-empty
// reply short-circuits the game.
func (s *Service) begin(ctx context.Context, user string, amount int64) (bet int64, reply string, err error) {
	if amount < 1 {
		return 0, fmt.Sprintf("@%s bet at least 1 chip", user), nil
	}
	ok, err := s.Ledger.TryCooldown(ctx, "game", user, s.Cooldown)
	if err != nil {
		return 0, "", err
	}
	if !ok {
		return 0, fmt.Sprintf("@%s slow down a little", user), nil
	}
	bet, _, err = s.Ledger.PlaceBet(ctx, user, amount)
	if err != nil {
		return 0, "", err
	}
	if bet == 0 {
		return 0, fmt.Sprintf("@%s you're out of chips", user), nil
	}
	return bet, "", nil
}

// settle credits winnings (0 for a loss), updates streaks, and renders the
// common result suffix. push skips streak accounting.
func (s *Service) settle(ctx context.Context, user string, winnings int64, push bool) (string, error) {
	newBal, err := s.Ledger.Credit(ctx, user, winnings)
	if err != nil {
		return "", err
	}
	if push {
		return fmt.Sprintf("(%d chips)", newBal), nil
	}
	var note string
	if winnings > 0 {
		bonus, streak, err := s.Ledger.RecordWin(ctx, user)
		if err != nil {
			return "", err
		}
		if bonus > 0 {
			newBal += bonus
			note = fmt.Sprintf(" 🔥 %d-win streak, +%d bonus!", streak, bonus)
		}
	} else {
		bonus, _, err := s.Ledger.RecordLoss(ctx, user)
		if err != nil {
			return "", err
		}
		if bonus > 0 {
			newBal += bonus
			note = fmt.Sprintf(" rough run, +%d pity chips", bonus)
		}
	}
	return fmt.Sprintf("(%d chips)%s", newBal, note), nil
}

// Coinflip pays even money on a fair flip.
func (s *Service) Coinflip(ctx context.Context, user string, amount int64) (string, error) {
	bet, reply, err := s.begin(ctx, user, amount)
	if reply != "" || err != nil {
		return reply, err
	}
	heads := s.intn(2) == 0
	side := "tails"
	if heads {
		side = "heads"
	}
	var winnings int64
	if heads {
		winnings = 2 * bet
	}
	suffix, err := s.settle(ctx, user, winnings, false)
	if err != nil {
		return "", err
	}
	if winnings > 0 {
		return fmt.Sprintf("@%s %s — you win %d! %s", user, side, winnings, suffix), nil
	}
	return fmt.Sprintf("@%s %s — you lose %d %s", user, side, bet, suffix), nil
}

var slotSymbols = []string{"🍒", "🍋", "🔔", "💎", "7️⃣"}

// Payout multiplier for three of a kind, by symbol index.
var slotTriple = []int64{5, 8, 10, 15, 25}

// Slots spins three reels: three of a kind pays the symbol's multiplier, any
// pair pays 2x.
func (s *Service) Slots(ctx context.Context, user string, amount int64) (string, error) {
	bet, reply, err := s.begin(ctx, user, amount)
	if reply != "" || err != nil {
		return reply, err
	}
	a, b, c := s.intn(len(slotSymbols)), s.intn(len(slotSymbols)), s.intn(len(slotSymbols))
	reels := slotSymbols[a] + slotSymbols[b] + slotSymbols[c]
	var winnings int64
	switch {
	case a == b && b == c:
		winnings = bet * slotTriple[a]
	case a == b || b == c || a == c:
		winnings = bet * 2
	}
	suffix, err := s.settle(ctx, user, winnings, false)
	if err != nil {
		return "", err
	}
	if winnings > 0 {
		return fmt.Sprintf("@%s %s — pays %d! %s", user, reels, winnings, suffix), nil
	}
	return fmt.Sprintf("@%s %s — no luck %s", user, reels, suffix), nil
}

// European wheel red numbers.
var rouletteRed = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true, 14: true, 16: true,
	18: true, 19: true, 21: true, 23: true, 25: true, 27: true, 30: true,
	32: true, 34: true, 36: true,
}

// Roulette takes red|black (pays 2x) or a single number 1-36 (pays 36x).
// The zero pocket loses every outside bet.
func (s *Service) Roulette(ctx context.Context, user, pick string, amount int64) (string, error) {
	var pickNum int
	switch pick {
	case "red", "black":
	default:
		n, err := strconv.Atoi(pick)
		if err != nil || n < 1 || n > 36 {
			return fmt.Sprintf("@%s usage: !roulette <red|black|1-36> <amount>", user), nil
		}
		pickNum = n
	}
	bet, reply, err := s.begin(ctx, user, amount)
	if reply != "" || err != nil {
		return reply, err
	}
	spin := s.intn(37)
	color := "green"
	if rouletteRed[spin] {
		color = "red"
	} else if spin != 0 {
		color = "black"
	}
	var winnings int64
	switch {
	case pickNum != 0 && spin == pickNum:
		winnings = bet * 36
	case pickNum == 0 && pick == color:
		winnings = bet * 2
	}
	suffix, err := s.settle(ctx, user, winnings, false)
	if err != nil {
		return "", err
	}
	if winnings > 0 {
		return fmt.Sprintf("@%s the ball lands on %d %s — you win %d! %s", user, spin, color, winnings, suffix), nil
	}
	return fmt.Sprintf("@%s the ball lands on %d %s — you lose %d %s", user, spin, color, bet, suffix), nil
}

// Dice rolls 2d6: high wins on 8+, low wins on 6 or under, a 7 loses either
// way. Pays even money.
func (s *Service) Dice(ctx context.Context, user, pick string, amount int64) (string, error) {
	if pick != "high" && pick != "low" {
		return fmt.Sprintf("@%s usage: !dice <high|low> <amount>", user), nil
	}
	bet, reply, err := s.begin(ctx, user, amount)
	if reply != "" || err != nil {
		return reply, err
	}
	d1, d2 := s.intn(6)+1, s.intn(6)+1
	total := d1 + d2
	won := (pick == "high" && total >= 8) || (pick == "low" && total <= 6)
	var winnings int64
	if won {
		winnings = 2 * bet
	}
	suffix, err := s.settle(ctx, user, winnings, false)
	if err != nil {
		return "", err
	}
	if won {
		return fmt.Sprintf("@%s 🎲 %d+%d=%d — %s wins %d! %s", user, d1, d2, total, pick, winnings, suffix), nil
	}
	return fmt.Sprintf("@%s 🎲 %d+%d=%d — you lose %d %s", user, d1, d2, total, bet, suffix), nil
}

const crashMaxMultiplier = 30.0

// Crash draws a bust point; cashing out at or below it pays bet×target
// (floored). Roughly 1/target odds of surviving, with a 3% instant bust.
func (s *Service) Crash(ctx context.Context, user string, amount int64, target float64) (string, error) {
	if target == 0 {
		target = 2.0
	}
	if target < 1.01 || target > crashMaxMultiplier {
		return fmt.Sprintf("@%s target must be between 1.01 and %.0f", user, crashMaxMultiplier), nil
	}
	bet, reply, err := s.begin(ctx, user, amount)
	if reply != "" || err != nil {
		return reply, err
	}
	u := s.float()
	bust := 1.0
	if u > 0.03 {
		bust = 1.0 / (1.0 - u)
		if bust > crashMaxMultiplier {
			bust = crashMaxMultiplier
		}
	}
	var winnings int64
	if target <= bust {
		winnings = int64(float64(bet) * target)
	}
	suffix, err := s.settle(ctx, user, winnings, false)
	if err != nil {
		return "", err
	}
	if winnings > 0 {
		return fmt.Sprintf("@%s 🚀 crashed at %.2fx — cashed out at %.2fx for %d! %s", user, bust, target, winnings, suffix), nil
	}
	return fmt.Sprintf("@%s 💥 crashed at %.2fx before your %.2fx — you lose %d %s", user, bust, target, bet, suffix), nil
}

// War draws one card each; higher rank wins even money, a tie pushes.
func (s *Service) War(ctx context.Context, user string, amount int64) (string, error) {
	bet, reply, err := s.begin(ctx, user, amount)
	if reply != "" || err != nil {
		return reply, err
	}
	deck := blackjack.NewDeck()
	s.mu.Lock()
	blackjack.Shuffle(deck, s.Rand)
	s.mu.Unlock()
	player, dealer := deck[0], deck[1]

	switch {
	case player.Rank > dealer.Rank:
		suffix, err := s.settle(ctx, user, 2*bet, false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s %s beats %s — you win %d! %s", user, player, dealer, 2*bet, suffix), nil
	case player.Rank < dealer.Rank:
		suffix, err := s.settle(ctx, user, 0, false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s %s loses to %s — you lose %d %s", user, player, dealer, bet, suffix), nil
	default:
		suffix, err := s.settle(ctx, user, bet, true)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s %s ties %s — push %s", user, player, dealer, suffix), nil
	}
}
