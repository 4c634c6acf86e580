// Package events runs the time-boxed multiplayer events: raffle, heist, chip
// drop, chat challenge, and boss fight. Each kind keeps one singleton record
// with an entry window and a store TTL backstop. Resolution claims the record
// by deleting it before any payout loop, so a second concurrent resolver
// finds nothing and no-ops.
//
// Proportional payouts (heist, boss) floor every division; remainders stay in
// the house.
package events

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/onnwee/chat-arcade/backend/economy"
	"github.com/onnwee/chat-arcade/backend/store"
	"github.com/onnwee/chat-arcade/backend/telemetry"
)

const (
	raffleKey    = "event:raffle"
	heistKey     = "event:heist"
	chipDropKey  = "event:chipdrop"
	challengeKey = "event:challenge"
	bossKey      = "event:boss"
)

var eventKeys = []string{raffleKey, heistKey, chipDropKey, challengeKey, bossKey}

// TTL slack past the entry window before the store garbage-collects an
// unresolved event.
const ttlSlack = 10 * time.Minute

type Config struct {
	RaffleWindow    time.Duration
	RafflePrize     int64
	HeistWindow     time.Duration
	ChipDropWindow  time.Duration
	ChipDropPot     int64
	ChipDropWinners int
	ChallengeWindow time.Duration
	ChallengeReward int64
	BossWindow      time.Duration
	BossReward      int64
}

type Manager struct {
	Store  store.Store
	Ledger *economy.Ledger
	Cfg    Config
	Rand   *rand.Rand
	Now    func() time.Time

	mu sync.Mutex
}

func (m *Manager) clock() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) intn(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Rand.Intn(n)
}

func (m *Manager) float() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Rand.Float64()
}

func jsonMarshal(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

// claim deletes the event record and reports whether this caller got it.
// Exactly one of any number of concurrent resolvers sees true.
func (m *Manager) claim(ctx context.Context, key string) (bool, error) {
	return m.Store.Del(ctx, key)
}

// HandleMessage is the passive-trigger path: every plain chat message is
// offered to the active events (raffle/chip-drop keywords, boss attack
// words, challenge counting). It returns any announcement to send.
func (m *Manager) HandleMessage(ctx context.Context, user, text string) (string, error) {
	if reply, err := m.handleRaffleMessage(ctx, user, text); reply != "" || err != nil {
		return reply, err
	}
	if reply, err := m.handleChipDropMessage(ctx, user, text); reply != "" || err != nil {
		return reply, err
	}
	if reply, err := m.handleBossMessage(ctx, user, text); reply != "" || err != nil {
		return reply, err
	}
	if err := m.handleChallengeMessage(ctx, user); err != nil {
		return "", err
	}
	return "", nil
}

// ResolveDue resolves every event whose entry window has elapsed. The
// scheduler calls this so events finish even when chat goes quiet; chat
// handlers also reach the same resolvers lazily.
func (m *Manager) ResolveDue(ctx context.Context) ([]string, error) {
	var out []string
	resolvers := []func(context.Context) (string, error){
		m.resolveDueRaffle,
		m.resolveDueChipDrop,
		m.resolveDueHeist,
		m.resolveDueChallenge,
		m.resolveDueBoss,
	}
	for _, resolve := range resolvers {
		msg, err := resolve(ctx)
		if err != nil {
			return out, err
		}
		if msg != "" {
			out = append(out, msg)
		}
	}
	telemetry.SetActiveEvents(m.countOpen(ctx))
	return out, nil
}

// countOpen reports how many event records are currently live.
func (m *Manager) countOpen(ctx context.Context) int {
	open := 0
	for _, k := range eventKeys {
		if _, ok, err := m.Store.Get(ctx, k); err == nil && ok {
			open++
		}
	}
	return open
}
