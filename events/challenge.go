package events

import (
	"context"
	"fmt"
	"time"

	"github.com/onnwee/chat-arcade/backend/store"
)

type challenge struct {
	Target       int           `json:"target"`
	Count        int           `json:"count"`
	Participants []string      `json:"participants"`
	Reward       int64         `json:"reward"`
	StartedAt    time.Time     `json:"started_at"`
	Window       time.Duration `json:"window"`
}

// StartChallenge opens a chat challenge: if chat collectively sends target
// messages before the window closes, everyone who chatted gets the reward.
func (m *Manager) StartChallenge(ctx context.Context, target int) (string, error) {
	if target < 1 {
		return "usage: !challenge <message count>", nil
	}
	c := challenge{
		Target:    target,
		Reward:    m.Cfg.ChallengeReward,
		StartedAt: m.clock(),
		Window:    m.Cfg.ChallengeWindow,
	}
	created, err := marshalNX(ctx, m.Store, challengeKey, c, c.Window+ttlSlack)
	if err != nil {
		return "", err
	}
	if !created {
		return "a chat challenge is already running", nil
	}
	return fmt.Sprintf("⚡ CHAT CHALLENGE! %d messages in %ds and everyone who chats gets %d chips",
		target, int(c.Window.Seconds()), c.Reward), nil
}

// handleChallengeMessage counts every chat message toward the target. The
// read-increment-write can drop a message under heavy concurrency; the count
// only ever undershoots.
func (m *Manager) handleChallengeMessage(ctx context.Context, user string) error {
	var c challenge
	ok, err := store.GetJSON(ctx, m.Store, challengeKey, &c)
	if err != nil || !ok {
		return err
	}
	if m.clock().Sub(c.StartedAt) > c.Window {
		return nil // the resolver handles it
	}
	c.Count++
	found := false
	for _, p := range c.Participants {
		if p == user {
			found = true
			break
		}
	}
	if !found {
		c.Participants = append(c.Participants, user)
	}
	return store.SetJSON(ctx, m.Store, challengeKey, &c, c.Window+ttlSlack)
}

func (m *Manager) resolveDueChallenge(ctx context.Context) (string, error) {
	var c challenge
	ok, err := store.GetJSON(ctx, m.Store, challengeKey, &c)
	if err != nil || !ok {
		return "", err
	}
	if m.clock().Sub(c.StartedAt) <= c.Window {
		return "", nil
	}
	claimed, err := m.claim(ctx, challengeKey)
	if err != nil || !claimed {
		return "", err
	}
	if c.Count < c.Target {
		return fmt.Sprintf("⚡ challenge failed: %d/%d messages — better luck next time", c.Count, c.Target), nil
	}
	for _, p := range c.Participants {
		if _, err := m.Ledger.Credit(ctx, p, c.Reward); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("⚡ challenge complete! %d/%d messages — %d chatter(s) get %d chips each",
		c.Count, c.Target, len(c.Participants), c.Reward), nil
}
