package blackjack

import (
	"math/rand"
	"testing"
)

func card(r Rank) Card { return Card{Rank: r, Suit: Spades} }

func TestHandValueSoftAces(t *testing.T) {
	tests := []struct {
		name  string
		cards []Card
		want  int
	}{
		{"two aces", []Card{card(Ace), card(Ace)}, 12},
		{"ace king", []Card{card(Ace), card(King)}, 21},
		{"three aces", []Card{card(Ace), card(Ace), card(Ace)}, 13},
		{"soft seventeen", []Card{card(Ace), card(Six)}, 17},
		{"hard after draw", []Card{card(Ace), card(Six), card(Ten)}, 17},
		{"faces count ten", []Card{card(Jack), card(Queen)}, 20},
		{"bust", []Card{card(King), card(Queen), card(Five)}, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HandValue(tt.cards); got != tt.want {
				t.Errorf("HandValue(%v) = %d, want %d", tt.cards, got, tt.want)
			}
		})
	}
}

func TestIsBlackjack(t *testing.T) {
	if !IsBlackjack([]Card{card(Ace), card(King)}) {
		t.Error("A+K should be blackjack")
	}
	if IsBlackjack([]Card{card(Seven), card(Seven), card(Seven)}) {
		t.Error("three-card 21 is not blackjack")
	}
	if IsBlackjack([]Card{card(Ten), card(Nine)}) {
		t.Error("19 is not blackjack")
	}
}

func TestPlayDealerDrawsToSeventeen(t *testing.T) {
	tests := []struct {
		name      string
		dealer    []Card
		deck      []Card
		wantTotal int
		wantDrawn int
	}{
		{"stands on 17", []Card{card(Ten), card(Seven)}, []Card{card(Five)}, 17, 0},
		{"draws under 17", []Card{card(Ten), card(Six)}, []Card{card(Five), card(Nine)}, 21, 1},
		{"draws twice", []Card{card(Two), card(Three)}, []Card{card(Four), card(Ten), card(King)}, 19, 2},
		{"soft 17 stands", []Card{card(Ace), card(Six)}, []Card{card(Ten)}, 17, 0},
		{"busts", []Card{card(Ten), card(Six)}, []Card{card(King)}, 26, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			final, rest := PlayDealer(tt.dealer, tt.deck)
			if got := HandValue(final); got != tt.wantTotal {
				t.Errorf("dealer total = %d, want %d", got, tt.wantTotal)
			}
			if drawn := len(tt.deck) - len(rest); drawn != tt.wantDrawn {
				t.Errorf("drew %d cards, want %d", drawn, tt.wantDrawn)
			}
		})
	}
}

func TestShuffleKeepsAllCards(t *testing.T) {
	deck := NewDeck()
	if len(deck) != 52 {
		t.Fatalf("deck has %d cards", len(deck))
	}
	Shuffle(deck, rand.New(rand.NewSource(1)))
	seen := make(map[Card]bool, 52)
	for _, c := range deck {
		seen[c] = true
	}
	if len(seen) != 52 {
		t.Fatalf("shuffle lost cards: %d unique", len(seen))
	}
}
