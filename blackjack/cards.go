// Package blackjack implements the per-user card game state machine: deal,
// hit, stand, double, and split against a dealer that draws to 17.
package blackjack

import (
	"fmt"
	"math/rand"
	"strings"
)

type Suit int

type Rank int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

const (
	Two   Rank = 2
	Three Rank = 3
	Four  Rank = 4
	Five  Rank = 5
	Six   Rank = 6
	Seven Rank = 7
	Eight Rank = 8
	Nine  Rank = 9
	Ten   Rank = 10
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
	Ace   Rank = 14
)

type Card struct {
	Rank Rank `json:"r"`
	Suit Suit `json:"s"`
}

func (c Card) String() string {
	r := map[Rank]string{
		Two: "2", Three: "3", Four: "4", Five: "5", Six: "6", Seven: "7",
		Eight: "8", Nine: "9", Ten: "10", Jack: "J", Queen: "Q", King: "K", Ace: "A",
	}[c.Rank]
	s := map[Suit]string{Spades: "♠", Hearts: "♥", Diamonds: "♦", Clubs: "♣"}[c.Suit]
	return r + s
}

// NewDeck returns an unshuffled 52-card deck.
func NewDeck() []Card {
	cards := make([]Card, 0, 52)
	for s := Spades; s <= Clubs; s++ {
		for r := Two; r <= Ace; r++ {
			cards = append(cards, Card{Rank: r, Suit: s})
		}
	}
	return cards
}

// Shuffle permutes deck in place using rnd.
func Shuffle(deck []Card, rnd *rand.Rand) {
	rnd.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
}

// HandValue returns the best blackjack total: aces count 11 but soft-reduce
// by 10 each while the total exceeds 21. Face cards count 10.
func HandValue(cards []Card) int {
	total, aces := 0, 0
	for _, c := range cards {
		switch {
		case c.Rank == Ace:
			total += 11
			aces++
		case c.Rank >= Ten:
			total += 10
		default:
			total += int(c.Rank)
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

// IsBlackjack reports a natural: exactly two cards totaling 21.
func IsBlackjack(cards []Card) bool {
	return len(cards) == 2 && HandValue(cards) == 21
}

// PlayDealer draws from deck onto the dealer hand while its total is below
// 17 and returns the final hand and remaining deck. Pure so tests can feed a
// fixed deck.
func PlayDealer(dealer, deck []Card) (finalHand, rest []Card) {
	for HandValue(dealer) < 17 && len(deck) > 0 {
		dealer = append(dealer, deck[0])
		deck = deck[1:]
	}
	return dealer, deck
}

func handString(cards []Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s (%d)", strings.Join(parts, " "), HandValue(cards))
}
