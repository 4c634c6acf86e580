// Package poll runs the single global poll lifecycle: idle → active → winner
// → idle, with a bounded FIFO queue of pending polls. Any chat message can be
// a vote; any engine call that notices the deadline passed tries to end the
// poll behind a short-TTL end-lock so exactly one caller announces the
// result.
package poll

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/chat-arcade/backend/store"
)

const (
	activeKey = "poll:active"
	queueKey  = "poll:queue"
	lockKey   = "poll:endlock"

	// TTL backstop on the active record and queue; generous because the
	// lifecycle normally deletes them much earlier.
	recordTTL = time.Hour
	lockTTL   = 10 * time.Second
)

type Status string

const (
	StatusActive Status = "active"
	StatusWinner Status = "winner"
)

type Option struct {
	Label  string         `json:"label"`
	Votes  int            `json:"votes"`
	Voters map[string]int `json:"voters"`
}

type Poll struct {
	ID          string        `json:"id"`
	Question    string        `json:"question"`
	Options     []Option      `json:"options"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Status      Status        `json:"status"`
	WinnerUntil time.Time     `json:"winner_until,omitempty"`
	ReplyTo     string        `json:"reply_to,omitempty"`
}

// Queued is a pending poll definition waiting its turn.
type Queued struct {
	Question string        `json:"question"`
	Options  []string      `json:"options"`
	Duration time.Duration `json:"duration"`
	ReplyTo  string        `json:"reply_to,omitempty"`
}

type Config struct {
	DefaultDuration time.Duration
	WinnerDisplay   time.Duration
	MaxQueue        int
	MultiVote       bool
	MaxQuestionLen  int
	MaxOptionLen    int
	MaxOptions      int
	BlockedWords    []string
}

type Engine struct {
	Store store.Store
	Cfg   Config
	Now   func() time.Time
}

func (e *Engine) clock() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

var allowedChars = regexp.MustCompile(`^[\p{L}\p{N}\s?!.,:'"#&+\-]+$`)

// validate applies the content filter and returns a user-facing complaint, or
// "" when the poll is acceptable.
func (e *Engine) validate(question string, options []string) string {
	if question == "" || len(options) < 2 {
		return "usage: !poll Question? Option1, Option2"
	}
	if len(question) > e.Cfg.MaxQuestionLen {
		return fmt.Sprintf("question too long (max %d chars)", e.Cfg.MaxQuestionLen)
	}
	if len(options) > e.Cfg.MaxOptions {
		return fmt.Sprintf("too many options (max %d)", e.Cfg.MaxOptions)
	}
	if !allowedChars.MatchString(question) {
		return "question contains unsupported characters"
	}
	seen := make(map[string]bool, len(options))
	for _, opt := range options {
		if opt == "" || len(opt) > e.Cfg.MaxOptionLen {
			return fmt.Sprintf("options must be 1-%d chars", e.Cfg.MaxOptionLen)
		}
		if !allowedChars.MatchString(opt) {
			return "option contains unsupported characters"
		}
		key := strings.ToLower(opt)
		if seen[key] {
			return fmt.Sprintf("duplicate option %q", opt)
		}
		seen[key] = true
	}
	lower := strings.ToLower(question + " " + strings.Join(options, " "))
	for _, w := range e.Cfg.BlockedWords {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return "that poll isn't going to fly here"
		}
	}
	return ""
}

func (e *Engine) loadActive(ctx context.Context) (*Poll, error) {
	var p Poll
	ok, err := store.GetJSON(ctx, e.Store, activeKey, &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (e *Engine) saveActive(ctx context.Context, p *Poll) error {
	return store.SetJSON(ctx, e.Store, activeKey, p, recordTTL)
}

func (e *Engine) loadQueue(ctx context.Context) ([]Queued, error) {
	var q []Queued
	if _, err := store.GetJSON(ctx, e.Store, queueKey, &q); err != nil {
		return nil, err
	}
	return q, nil
}

func (e *Engine) saveQueue(ctx context.Context, q []Queued) error {
	if len(q) == 0 {
		_, err := e.Store.Del(ctx, queueKey)
		return err
	}
	return store.SetJSON(ctx, e.Store, queueKey, q, recordTTL)
}

func (e *Engine) activate(ctx context.Context, q Queued) (string, error) {
	opts := make([]Option, len(q.Options))
	for i, label := range q.Options {
		opts[i] = Option{Label: label, Voters: map[string]int{}}
	}
	p := &Poll{
		ID:        uuid.New().String(),
		Question:  q.Question,
		Options:   opts,
		StartedAt: e.clock(),
		Duration:  q.Duration,
		Status:    StatusActive,
		ReplyTo:   q.ReplyTo,
	}
	if err := e.saveActive(ctx, p); err != nil {
		return "", err
	}
	labels := make([]string, len(q.Options))
	copy(labels, q.Options)
	return fmt.Sprintf("📊 POLL (%ds): %s — vote by typing %s",
		int(q.Duration.Seconds()), q.Question, strings.Join(labels, " or ")), nil
}

// Start begins a poll immediately when idle, or appends it to the bounded
// FIFO queue with an estimated wait when one is already running or showing
// its winner. Permission checks belong to the caller.
func (e *Engine) Start(ctx context.Context, question string, options []string, duration time.Duration, replyTo string) (string, error) {
	if complaint := e.validate(question, options); complaint != "" {
		return complaint, nil
	}
	if duration <= 0 {
		duration = e.Cfg.DefaultDuration
	}
	q := Queued{Question: question, Options: options, Duration: duration, ReplyTo: replyTo}

	active, err := e.loadActive(ctx)
	if err != nil {
		return "", err
	}
	if active == nil {
		return e.activate(ctx, q)
	}

	// Busy: enqueue. The queue read-append-write is a designed race; two
	// simultaneous starts can drop one entry, which a retry fixes.
	queue, err := e.loadQueue(ctx)
	if err != nil {
		return "", err
	}
	if len(queue) >= e.Cfg.MaxQueue {
		return fmt.Sprintf("poll queue is full (%d waiting) — try later", len(queue)), nil
	}
	wait := e.estimateWait(active, queue)
	queue = append(queue, q)
	if err := e.saveQueue(ctx, queue); err != nil {
		return "", err
	}
	return fmt.Sprintf("poll queued at position %d, up in ~%ds", len(queue), int(wait.Seconds())), nil
}

// estimateWait sums the remaining life of the current poll plus the full
// runtime of everything queued ahead.
func (e *Engine) estimateWait(active *Poll, ahead []Queued) time.Duration {
	now := e.clock()
	var wait time.Duration
	switch active.Status {
	case StatusActive:
		if rem := active.StartedAt.Add(active.Duration).Sub(now); rem > 0 {
			wait += rem
		}
		wait += e.Cfg.WinnerDisplay
	case StatusWinner:
		if rem := active.WinnerUntil.Sub(now); rem > 0 {
			wait += rem
		}
	}
	for _, q := range ahead {
		wait += q.Duration + e.Cfg.WinnerDisplay
	}
	return wait
}

// Vote tests a chat message against the active poll's option labels and
// registers a matching vote. Default mode moves a voter's previous vote;
// multi-vote mode counts every message.
func (e *Engine) Vote(ctx context.Context, user, text string) (bool, error) {
	p, err := e.loadActive(ctx)
	if err != nil || p == nil {
		return false, err
	}
	if p.Status != StatusActive || e.clock().After(p.StartedAt.Add(p.Duration)) {
		return false, nil
	}
	vote := strings.ToLower(strings.TrimSpace(text))
	idx := -1
	for i := range p.Options {
		if strings.ToLower(p.Options[i].Label) == vote {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	if e.Cfg.MultiVote {
		p.Options[idx].Votes++
		p.Options[idx].Voters[user]++
	} else {
		// Move a previous vote instead of stacking.
		for i := range p.Options {
			if i != idx && p.Options[i].Voters[user] > 0 {
				p.Options[i].Votes -= p.Options[i].Voters[user]
				delete(p.Options[i].Voters, user)
			}
		}
		if p.Options[idx].Voters[user] > 0 {
			return true, nil // unchanged vote, skip the write
		}
		p.Options[idx].Votes++
		p.Options[idx].Voters[user] = 1
	}
	return true, e.saveActive(ctx, p)
}

// winnerIndex picks the highest vote count; ties go to the first-registered
// option.
func winnerIndex(opts []Option) int {
	best := 0
	for i := 1; i < len(opts); i++ {
		if opts[i].Votes > opts[best].Votes {
			best = i
		}
	}
	return best
}

// Tick advances the lifecycle: ends an overdue active poll (behind the
// end-lock) and promotes the queue once the winner display window has
// elapsed. It returns announcements to relay to chat. Both chat handlers and
// the scheduler call this, so expiry fires with or without traffic.
func (e *Engine) Tick(ctx context.Context) ([]string, error) {
	p, err := e.loadActive(ctx)
	if err != nil || p == nil {
		return nil, err
	}
	now := e.clock()

	switch p.Status {
	case StatusActive:
		if now.Before(p.StartedAt.Add(p.Duration)) {
			return nil, nil
		}
		// Only the lock winner computes and announces; losers treat the
		// overdue poll as someone else's problem.
		got, err := e.Store.SetNX(ctx, lockKey, "1", lockTTL)
		if err != nil {
			return nil, err
		}
		if !got {
			return nil, nil
		}
		win := winnerIndex(p.Options)
		p.Status = StatusWinner
		p.WinnerUntil = now.Add(e.Cfg.WinnerDisplay)
		if err := e.saveActive(ctx, p); err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("🏆 poll closed: %q wins with %d vote(s)",
			p.Options[win].Label, p.Options[win].Votes)}, nil

	case StatusWinner:
		if now.Before(p.WinnerUntil) {
			return nil, nil
		}
		got, err := e.Store.SetNX(ctx, lockKey, "1", lockTTL)
		if err != nil {
			return nil, err
		}
		if !got {
			return nil, nil
		}
		if _, err := e.Store.Del(ctx, activeKey); err != nil {
			return nil, err
		}
		return e.promote(ctx)
	}
	return nil, nil
}

// promote pops the next queued poll (if any) and activates it.
func (e *Engine) promote(ctx context.Context) ([]string, error) {
	queue, err := e.loadQueue(ctx)
	if err != nil || len(queue) == 0 {
		return nil, err
	}
	next := queue[0]
	if err := e.saveQueue(ctx, queue[1:]); err != nil {
		return nil, err
	}
	announce, err := e.activate(ctx, next)
	if err != nil {
		return nil, err
	}
	return []string{announce}, nil
}

// ForceEnd closes the active poll immediately, announces the winner, and
// promotes the queue with no winner-display window. Caller enforces the
// moderator check.
func (e *Engine) ForceEnd(ctx context.Context) (string, error) {
	p, err := e.loadActive(ctx)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "no active poll", nil
	}
	if _, err := e.Store.Del(ctx, activeKey); err != nil {
		return "", err
	}
	win := winnerIndex(p.Options)
	out := fmt.Sprintf("🏆 poll ended early: %q wins with %d vote(s)", p.Options[win].Label, p.Options[win].Votes)
	more, err := e.promote(ctx)
	if err != nil {
		return "", err
	}
	if len(more) > 0 {
		out += " | " + strings.Join(more, " | ")
	}
	return out, nil
}

// StatusLine describes the current poll state for !pollstatus.
func (e *Engine) StatusLine(ctx context.Context) (string, error) {
	p, err := e.loadActive(ctx)
	if err != nil {
		return "", err
	}
	queue, err := e.loadQueue(ctx)
	if err != nil {
		return "", err
	}
	if p == nil {
		if len(queue) > 0 {
			return fmt.Sprintf("no active poll, %d queued", len(queue)), nil
		}
		return "no active poll", nil
	}
	switch p.Status {
	case StatusWinner:
		win := winnerIndex(p.Options)
		return fmt.Sprintf("last poll: %q won (%d queued)", p.Options[win].Label, len(queue)), nil
	default:
		rem := p.StartedAt.Add(p.Duration).Sub(e.clock())
		if rem < 0 {
			rem = 0
		}
		parts := make([]string, len(p.Options))
		for i, o := range p.Options {
			parts[i] = fmt.Sprintf("%s: %d", o.Label, o.Votes)
		}
		return fmt.Sprintf("📊 %s — %s (%ds left, %d queued)",
			p.Question, strings.Join(parts, " | "), int(rem.Seconds()), len(queue)), nil
	}
}
