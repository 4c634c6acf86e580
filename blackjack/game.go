package blackjack

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/onnwee/chat-arcade/backend/economy"
	"github.com/onnwee/chat-arcade/backend/store"
)

const gamePrefix = "bj:game:"

// Store TTL backstop well past the logical abandon timeout.
const gameTTL = 5 * time.Minute

// Game is the persisted hand state. Hands holds one hand, or two after a
// split; FirstDone marks hand 1 finished so play moves to hand 2. A hand is
// busted when its value exceeds 21, so bust needs no separate flag.
type Game struct {
	User      string    `json:"user"`
	Hands     [][]Card  `json:"hands"`
	Bets      []int64   `json:"bets"`
	Dealer    []Card    `json:"dealer"`
	Deck      []Card    `json:"deck"`
	Split     bool      `json:"split"`
	FirstDone bool      `json:"first_done"`
	CreatedAt time.Time `json:"created_at"`
}

// Service runs the state machine over the shared store. One instance is
// shared across concurrent handlers; only the rand source needs guarding.
type Service struct {
	Ledger   *economy.Ledger
	Store    store.Store
	Timeout  time.Duration // hand abandoned after this, checked lazily on read
	Cooldown time.Duration // min gap between deals per user
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

func (s *Service) shuffled() []Card {
	deck := NewDeck()
	s.mu.Lock()
	Shuffle(deck, s.Rand)
	s.mu.Unlock()
	return deck
}

func gameKey(user string) string { return gamePrefix + user }

// load reads the user's game. A hand untouched past the abandon timeout is
// auto-stood: the dealer plays out and the hand settles as if the user had
// sent !stand, so walking away never eats the bet outright.
func (s *Service) load(ctx context.Context, user string) (*Game, error) {
	var g Game
	ok, err := store.GetJSON(ctx, s.Store, gameKey(user), &g)
	if err != nil || !ok {
		return nil, err
	}
	if s.clock().Sub(g.CreatedAt) > s.Timeout {
		g.FirstDone = true
		if _, err := s.resolve(ctx, &g); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &g, nil
}

func (s *Service) save(ctx context.Context, g *Game) error {
	return store.SetJSON(ctx, s.Store, gameKey(g.User), g, gameTTL)
}

// Deal starts a hand. The reply is user-facing; err only signals store trouble.
func (s *Service) Deal(ctx context.Context, user string, amount int64) (string, error) {
	if amount < 1 {
		return "usage: !deal <amount>", nil
	}
	g, err := s.load(ctx, user)
	if err != nil {
		return "", err
	}
	if g != nil {
		return fmt.Sprintf("@%s you already have a hand going: %s — !hit, !stand, !double or !split", user, handString(g.Hands[0])), nil
	}
	ok, err := s.Ledger.TryCooldown(ctx, "deal", user, s.Cooldown)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("@%s easy there, the table needs a moment", user), nil
	}
	bet, after, err := s.Ledger.PlaceBet(ctx, user, amount)
	if err != nil {
		return "", err
	}
	if bet == 0 {
		return fmt.Sprintf("@%s you're out of chips", user), nil
	}

	deck := s.shuffled()
	player := []Card{deck[0], deck[2]}
	dealer := []Card{deck[1], deck[3]}
	deck = deck[4:]

	// Naturals resolve immediately; no state is persisted.
	if IsBlackjack(player) {
		if IsBlackjack(dealer) {
			newBal, err := s.Ledger.Credit(ctx, user, bet)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("@%s blackjack vs blackjack — push! %s vs %s — %d chips", user, handString(player), handString(dealer), newBal), nil
		}
		payout := bet + bet*3/2
		newBal, err := s.Ledger.Credit(ctx, user, payout)
		if err != nil {
			return "", err
		}
		if _, _, err := s.Ledger.RecordWin(ctx, user); err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s BLACKJACK! %s pays %d — %d chips", user, handString(player), payout, newBal), nil
	}

	g = &Game{
		User:      user,
		Hands:     [][]Card{player},
		Bets:      []int64{bet},
		Dealer:    dealer,
		Deck:      deck,
		CreatedAt: s.clock(),
	}
	if err := s.save(ctx, g); err != nil {
		return "", err
	}
	return fmt.Sprintf("@%s bet %d: %s | dealer shows %s — !hit, !stand, !double%s (%d chips)",
		user, bet, handString(player), g.Dealer[0], splitHint(player), after), nil
}

func splitHint(hand []Card) string {
	if len(hand) == 2 && hand[0].Rank == hand[1].Rank {
		return " or !split"
	}
	return ""
}

// activeHand returns the index of the hand currently in play.
func (g *Game) activeHand() int {
	if g.Split && g.FirstDone {
		return 1
	}
	return 0
}

// Hit draws one card into the active hand.
func (s *Service) Hit(ctx context.Context, user string) (string, error) {
	g, err := s.load(ctx, user)
	if err != nil {
		return "", err
	}
	if g == nil {
		return fmt.Sprintf("@%s no active hand — !deal <amount> to play", user), nil
	}
	i := g.activeHand()
	g.Hands[i] = append(g.Hands[i], g.Deck[0])
	g.Deck = g.Deck[1:]

	if HandValue(g.Hands[i]) <= 21 {
		if err := s.save(ctx, g); err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s %s%s — !hit or !stand", user, handLabel(g, i), handString(g.Hands[i])), nil
	}

	// Bust. In a split, hand 1 busting passes control to hand 2.
	if g.Split && !g.FirstDone {
		g.FirstDone = true
		if err := s.save(ctx, g); err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s hand 1 busts with %s — now hand 2: %s", user, handString(g.Hands[0]), handString(g.Hands[1])), nil
	}
	return s.resolve(ctx, g)
}

func handLabel(g *Game, i int) string {
	if !g.Split {
		return ""
	}
	return fmt.Sprintf("hand %d: ", i+1)
}

// Stand finishes the active hand. In a split with hand 1 still live it only
// moves play to hand 2; otherwise the dealer plays out and the game resolves.
func (s *Service) Stand(ctx context.Context, user string) (string, error) {
	g, err := s.load(ctx, user)
	if err != nil {
		return "", err
	}
	if g == nil {
		return fmt.Sprintf("@%s no active hand — !deal <amount> to play", user), nil
	}
	if g.Split && !g.FirstDone {
		g.FirstDone = true
		if err := s.save(ctx, g); err != nil {
			return "", err
		}
		return fmt.Sprintf("@%s hand 1 stands at %s — now hand 2: %s", user, handString(g.Hands[0]), handString(g.Hands[1])), nil
	}
	return s.resolve(ctx, g)
}

// Double doubles the bet on an un-split two-card hand, draws exactly one
// card, then stands.
func (s *Service) Double(ctx context.Context, user string) (string, error) {
	g, err := s.load(ctx, user)
	if err != nil {
		return "", err
	}
	if g == nil {
		return fmt.Sprintf("@%s no active hand — !deal <amount> to play", user), nil
	}
	if g.Split || len(g.Hands[0]) != 2 {
		return fmt.Sprintf("@%s you can only double on your first two cards", user), nil
	}
	ok, bal, err := s.Ledger.Debit(ctx, user, g.Bets[0])
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("@%s not enough chips to double (need %d, have %d)", user, g.Bets[0], bal), nil
	}
	g.Bets[0] *= 2
	g.Hands[0] = append(g.Hands[0], g.Deck[0])
	g.Deck = g.Deck[1:]
	return s.resolve(ctx, g)
}

// Split turns a two-card pair into two hands with a matching second bet.
func (s *Service) Split(ctx context.Context, user string) (string, error) {
	g, err := s.load(ctx, user)
	if err != nil {
		return "", err
	}
	if g == nil {
		return fmt.Sprintf("@%s no active hand — !deal <amount> to play", user), nil
	}
	if g.Split || len(g.Hands[0]) != 2 || g.Hands[0][0].Rank != g.Hands[0][1].Rank {
		return fmt.Sprintf("@%s you can only split a two-card pair", user), nil
	}
	ok, bal, err := s.Ledger.Debit(ctx, user, g.Bets[0])
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("@%s not enough chips to split (need %d, have %d)", user, g.Bets[0], bal), nil
	}
	g.Hands = [][]Card{{g.Hands[0][0], g.Deck[0]}, {g.Hands[0][1], g.Deck[1]}}
	g.Deck = g.Deck[2:]
	g.Bets = []int64{g.Bets[0], g.Bets[0]}
	g.Split = true
	if err := s.save(ctx, g); err != nil {
		return "", err
	}
	return fmt.Sprintf("@%s split! hand 1: %s | hand 2: %s — playing hand 1: !hit or !stand",
		user, handString(g.Hands[0]), handString(g.Hands[1])), nil
}

// resolve plays the dealer (if any hand is still live), settles each hand,
// deletes the game state, and reports the net result.
func (s *Service) resolve(ctx context.Context, g *Game) (string, error) {
	anyLive := false
	for _, h := range g.Hands {
		if HandValue(h) <= 21 {
			anyLive = true
		}
	}
	if anyLive {
		g.Dealer, g.Deck = PlayDealer(g.Dealer, g.Deck)
	}
	dealerTotal := HandValue(g.Dealer)

	var winnings, wagered int64
	outcomes := make([]string, len(g.Hands))
	for i, h := range g.Hands {
		wagered += g.Bets[i]
		total := HandValue(h)
		switch {
		case total > 21:
			outcomes[i] = fmt.Sprintf("%s bust", handString(h))
		case dealerTotal > 21 || total > dealerTotal:
			winnings += 2 * g.Bets[i]
			outcomes[i] = fmt.Sprintf("%s wins", handString(h))
		case total == dealerTotal:
			winnings += g.Bets[i]
			outcomes[i] = fmt.Sprintf("%s push", handString(h))
		default:
			outcomes[i] = fmt.Sprintf("%s loses", handString(h))
		}
	}

	if _, err := s.Store.Del(ctx, gameKey(g.User)); err != nil {
		return "", err
	}
	newBal, err := s.Ledger.Credit(ctx, g.User, winnings)
	if err != nil {
		return "", err
	}

	net := winnings - wagered
	var streakNote string
	switch {
	case net > 0:
		bonus, streak, err := s.Ledger.RecordWin(ctx, g.User)
		if err != nil {
			return "", err
		}
		if bonus > 0 {
			newBal += bonus
			streakNote = fmt.Sprintf(" 🔥 %d-win streak, +%d bonus!", streak, bonus)
		}
	case net < 0:
		if _, _, err := s.Ledger.RecordLoss(ctx, g.User); err != nil {
			return "", err
		}
	}

	result := "even"
	if net > 0 {
		result = fmt.Sprintf("+%d", net)
	} else if net < 0 {
		result = fmt.Sprintf("%d", net)
	}
	return fmt.Sprintf("@%s dealer: %s | %s → %s (%d chips)%s",
		g.User, handString(g.Dealer), joinOutcomes(outcomes), result, newBal, streakNote), nil
}

func joinOutcomes(outcomes []string) string {
	if len(outcomes) == 1 {
		return outcomes[0]
	}
	return "hand 1: " + outcomes[0] + " | hand 2: " + outcomes[1]
}
