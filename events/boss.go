package events

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/onnwee/chat-arcade/backend/store"
)

type boss struct {
	Name       string           `json:"name"`
	HP         int64            `json:"hp"`
	MaxHP      int64            `json:"max_hp"`
	Weakness   string           `json:"weakness"`
	Resistance string           `json:"resistance"`
	Damage     map[string]int64 `json:"damage"`
	Reward     int64            `json:"reward"`
	StartedAt  time.Time        `json:"started_at"`
	Window     time.Duration    `json:"window"`
}

const (
	defaultBossHP = 300
	baseDamage    = 10
	weakDamage    = 20
	resistDamage  = 5
)

// Attack words grouped by damage type. The boss is weak to one type and
// resistant to another.
var attackWords = map[string]string{
	"punch": "melee", "kick": "melee", "slash": "melee", "stab": "melee",
	"fireball": "magic", "zap": "magic", "hex": "magic", "frostbolt": "magic",
	"arrow": "ranged", "snipe": "ranged", "throw": "ranged", "slingshot": "ranged",
}

var damageTypes = []string{"melee", "magic", "ranged"}

var bossNames = []string{
	"Chatzilla", "The Mod Eater", "Lord Lurker", "Kappa Prime", "The Spam King",
}

// StartBoss spawns a boss fight. Chat attacks by typing attack words; if the
// boss dies inside the window the reward is split proportionally to damage
// dealt, floored. If it survives, it escapes with the chips.
func (m *Manager) StartBoss(ctx context.Context, hp int64) (string, error) {
	if hp <= 0 {
		hp = defaultBossHP
	}
	weak := damageTypes[m.intn(len(damageTypes))]
	resist := damageTypes[m.intn(len(damageTypes))]
	for resist == weak {
		resist = damageTypes[m.intn(len(damageTypes))]
	}
	b := boss{
		Name:       bossNames[m.intn(len(bossNames))],
		HP:         hp,
		MaxHP:      hp,
		Weakness:   weak,
		Resistance: resist,
		Damage:     map[string]int64{},
		Reward:     m.Cfg.BossReward,
		StartedAt:  m.clock(),
		Window:     m.Cfg.BossWindow,
	}
	created, err := marshalNX(ctx, m.Store, bossKey, b, b.Window+ttlSlack)
	if err != nil {
		return "", err
	}
	if !created {
		return "a boss fight is already underway", nil
	}
	return fmt.Sprintf("👹 %s appears with %d HP! attack with melee (punch/slash), magic (fireball/zap) or ranged (arrow/snipe) — weak to %s, resists %s. %d chips for the kill!",
		b.Name, hp, weak, resist, b.Reward), nil
}

// damageFor maps an attack word to its damage against this boss.
func (b *boss) damageFor(word string) (int64, bool) {
	kind, ok := attackWords[word]
	if !ok {
		return 0, false
	}
	switch kind {
	case b.Weakness:
		return weakDamage, true
	case b.Resistance:
		return resistDamage, true
	default:
		return baseDamage, true
	}
}

func (m *Manager) handleBossMessage(ctx context.Context, user, text string) (string, error) {
	var b boss
	ok, err := store.GetJSON(ctx, m.Store, bossKey, &b)
	if err != nil || !ok {
		return "", err
	}
	if m.clock().Sub(b.StartedAt) > b.Window {
		return m.resolveBossEscape(ctx, &b)
	}
	word := strings.ToLower(strings.TrimSpace(text))
	dmg, ok := b.damageFor(word)
	if !ok {
		return "", nil
	}
	b.HP -= dmg
	if b.Damage == nil {
		b.Damage = map[string]int64{}
	}
	b.Damage[user] += dmg
	if b.HP <= 0 {
		return m.resolveBossKill(ctx, &b)
	}
	if err := store.SetJSON(ctx, m.Store, bossKey, &b, b.Window+ttlSlack); err != nil {
		return "", err
	}
	return "", nil
}

func (m *Manager) resolveDueBoss(ctx context.Context) (string, error) {
	var b boss
	ok, err := store.GetJSON(ctx, m.Store, bossKey, &b)
	if err != nil || !ok {
		return "", err
	}
	if m.clock().Sub(b.StartedAt) <= b.Window {
		return "", nil
	}
	return m.resolveBossEscape(ctx, &b)
}

func (m *Manager) resolveBossEscape(ctx context.Context, b *boss) (string, error) {
	claimed, err := m.claim(ctx, bossKey)
	if err != nil || !claimed {
		return "", err
	}
	return fmt.Sprintf("👹 %s escapes with %d/%d HP left. no chips today", b.Name, b.HP, b.MaxHP), nil
}

func (m *Manager) resolveBossKill(ctx context.Context, b *boss) (string, error) {
	claimed, err := m.claim(ctx, bossKey)
	if err != nil || !claimed {
		return "", err
	}
	var total int64
	for _, d := range b.Damage {
		total += d
	}
	if total == 0 {
		return fmt.Sprintf("👹 %s falls over on its own. nobody gets paid", b.Name), nil
	}
	// Stable order so the announcement doesn't shuffle between runs.
	users := make([]string, 0, len(b.Damage))
	for u := range b.Damage {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if b.Damage[users[i]] != b.Damage[users[j]] {
			return b.Damage[users[i]] > b.Damage[users[j]]
		}
		return users[i] < users[j]
	})
	for _, u := range users {
		share := b.Reward * b.Damage[u] / total
		if share < 1 {
			continue
		}
		if _, err := m.Ledger.Credit(ctx, u, share); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("⚔️ %s is slain! %d chips split among %d fighter(s), MVP: %s (%d dmg)",
		b.Name, b.Reward, len(users), users[0], b.Damage[users[0]]), nil
}
