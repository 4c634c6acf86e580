package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/chat-arcade/backend/store"
)

type chipDrop struct {
	Keyword      string        `json:"keyword"`
	Pot          int64         `json:"pot"`
	MaxWinners   int           `json:"max_winners"`
	Participants []string      `json:"participants"`
	StartedAt    time.Time     `json:"started_at"`
	Window       time.Duration `json:"window"`
}

// StartChipDrop opens a chip drop: the first N chatters to type the keyword
// split the pot evenly (floored) when the window closes.
func (m *Manager) StartChipDrop(ctx context.Context, keyword string, pot int64) (string, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" || strings.HasPrefix(keyword, "!") {
		return "usage: !chipdrop <keyword> [pot]", nil
	}
	if pot <= 0 {
		pot = m.Cfg.ChipDropPot
	}
	d := chipDrop{
		Keyword:    keyword,
		Pot:        pot,
		MaxWinners: m.Cfg.ChipDropWinners,
		StartedAt:  m.clock(),
		Window:     m.Cfg.ChipDropWindow,
	}
	created, err := marshalNX(ctx, m.Store, chipDropKey, d, d.Window+ttlSlack)
	if err != nil {
		return "", err
	}
	if !created {
		return "a chip drop is already running", nil
	}
	return fmt.Sprintf("💸 CHIP DROP! first %d to type %q split %d chips (%ds)",
		d.MaxWinners, keyword, pot, int(d.Window.Seconds())), nil
}

func (m *Manager) handleChipDropMessage(ctx context.Context, user, text string) (string, error) {
	var d chipDrop
	ok, err := store.GetJSON(ctx, m.Store, chipDropKey, &d)
	if err != nil || !ok {
		return "", err
	}
	if m.clock().Sub(d.StartedAt) > d.Window {
		return m.resolveChipDrop(ctx, &d)
	}
	if !strings.EqualFold(strings.TrimSpace(text), d.Keyword) {
		return "", nil
	}
	if len(d.Participants) >= d.MaxWinners {
		return "", nil
	}
	for _, p := range d.Participants {
		if p == user {
			return "", nil
		}
	}
	d.Participants = append(d.Participants, user)
	if err := store.SetJSON(ctx, m.Store, chipDropKey, &d, d.Window+ttlSlack); err != nil {
		return "", err
	}
	// Filling the last slot resolves immediately instead of waiting out the
	// window.
	if len(d.Participants) == d.MaxWinners {
		return m.resolveChipDrop(ctx, &d)
	}
	return "", nil
}

func (m *Manager) resolveDueChipDrop(ctx context.Context) (string, error) {
	var d chipDrop
	ok, err := store.GetJSON(ctx, m.Store, chipDropKey, &d)
	if err != nil || !ok {
		return "", err
	}
	if m.clock().Sub(d.StartedAt) <= d.Window {
		return "", nil
	}
	return m.resolveChipDrop(ctx, &d)
}

func (m *Manager) resolveChipDrop(ctx context.Context, d *chipDrop) (string, error) {
	claimed, err := m.claim(ctx, chipDropKey)
	if err != nil || !claimed {
		return "", err
	}
	if len(d.Participants) == 0 {
		return "💸 the chip drop vanishes unclaimed", nil
	}
	share := d.Pot / int64(len(d.Participants))
	for _, p := range d.Participants {
		if _, err := m.Ledger.Credit(ctx, p, share); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("💸 chip drop claimed! %s grab %d chips each",
		strings.Join(d.Participants, ", "), share), nil
}
