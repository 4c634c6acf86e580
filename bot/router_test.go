package bot

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/chat-arcade/backend/blackjack"
	"github.com/onnwee/chat-arcade/backend/config"
	"github.com/onnwee/chat-arcade/backend/economy"
	"github.com/onnwee/chat-arcade/backend/events"
	"github.com/onnwee/chat-arcade/backend/games"
	"github.com/onnwee/chat-arcade/backend/poll"
	"github.com/onnwee/chat-arcade/backend/store"
)

func testRouter(t *testing.T) (*Router, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemory()
	cfg := &config.Config{
		StartingStake:       100,
		GamblingEnabled:     true,
		PollDefaultDuration: time.Minute,
		PollStartMod:        true,
		PollStartVIP:        true,
		PollStartOG:         true,
		PollMaxQueue:        5,
		PollMaxQuestionLen:  120,
		PollMaxOptionLen:    25,
		PollMaxOptions:      6,
		RafflePrize:         250,
		RaffleWindow:        time.Minute,
		HeistWindow:         45 * time.Second,
		ChipDropWindow:      30 * time.Second,
		ChipDropPot:         300,
		ChipDropWinners:     5,
		ChallengeWindow:     time.Minute,
		ChallengeReward:     50,
		BossWindow:          2 * time.Minute,
		BossReward:          1000,
	}
	ledger := &economy.Ledger{Store: st, StartingStake: cfg.StartingStake}
	// One rand source per service, mirroring the production wiring.
	r := &Router{
		Cfg:    cfg,
		Store:  st,
		Ledger: ledger,
		Blackjack: &blackjack.Service{
			Ledger: ledger, Store: st, Timeout: 90 * time.Second,
			Rand: rand.New(rand.NewSource(11)),
		},
		Games: &games.Service{Ledger: ledger, Store: st, Rand: rand.New(rand.NewSource(12))},
		Polls: &poll.Engine{Store: st, Cfg: poll.Config{
			DefaultDuration: cfg.PollDefaultDuration,
			WinnerDisplay:   15 * time.Second,
			MaxQueue:        cfg.PollMaxQueue,
			MaxQuestionLen:  cfg.PollMaxQuestionLen,
			MaxOptionLen:    cfg.PollMaxOptionLen,
			MaxOptions:      cfg.PollMaxOptions,
		}},
		Events: &events.Manager{Store: st, Ledger: ledger, Rand: rand.New(rand.NewSource(13)), Cfg: events.Config{
			RaffleWindow:    cfg.RaffleWindow,
			RafflePrize:     cfg.RafflePrize,
			HeistWindow:     cfg.HeistWindow,
			ChipDropWindow:  cfg.ChipDropWindow,
			ChipDropPot:     cfg.ChipDropPot,
			ChipDropWinners: cfg.ChipDropWinners,
			ChallengeWindow: cfg.ChallengeWindow,
			ChallengeReward: cfg.ChallengeReward,
			BossWindow:      cfg.BossWindow,
			BossReward:      cfg.BossReward,
		}},
	}
	return r, st
}

func say(r *Router, user, text string) string {
	return r.Handle(context.Background(), Message{User: user, Text: text})
}

func sayAs(r *Router, user, text string, roles Roles) string {
	return r.Handle(context.Background(), Message{User: user, Text: text, Roles: roles})
}

func TestChipsAndTop(t *testing.T) {
	r, _ := testRouter(t)

	if got := say(r, "Alice", "!chips"); !strings.Contains(got, "@alice you have 100 chips") {
		t.Fatalf("got %q", got)
	}
	if got := say(r, "bob", "!balance"); !strings.Contains(got, "100 chips") {
		t.Fatalf("got %q", got)
	}
	got := say(r, "alice", "!top")
	if !strings.HasPrefix(got, "🏆 ") || !strings.Contains(got, "alice") || !strings.Contains(got, "bob") {
		t.Fatalf("got %q", got)
	}
}

func TestUnknownCommandSilent(t *testing.T) {
	r, _ := testRouter(t)
	if got := say(r, "alice", "!sr never gonna give you up"); got != "" {
		t.Fatalf("unknown command replied %q", got)
	}
}

func TestGamblingToggleFromStore(t *testing.T) {
	r, st := testRouter(t)
	ctx := context.Background()

	if got := say(r, "alice", "!coinflip 10"); got == "" {
		t.Fatal("coinflip should reply while gambling is on")
	}
	if err := st.Set(ctx, "cfg:GAMBLING_ENABLED", "false", 0); err != nil {
		t.Fatal(err)
	}
	if got := say(r, "alice", "!slots 10"); got != "" {
		t.Fatalf("gambling off should silence games, got %q", got)
	}
	// Non-wager commands keep working.
	if got := say(r, "alice", "!chips"); got == "" {
		t.Fatal("!chips should still reply")
	}
	if err := st.Set(ctx, "cfg:GAMBLING_ENABLED", "true", 0); err != nil {
		t.Fatal(err)
	}
	if got := say(r, "alice", "!dice high 5"); got == "" {
		t.Fatal("gambling back on should reply")
	}
}

func TestPollPermissions(t *testing.T) {
	r, _ := testRouter(t)

	if got := say(r, "pleb", "!poll Best color? red, blue"); got != "" {
		t.Fatalf("viewer should not start polls, got %q", got)
	}
	got := sayAs(r, "modguy", "!poll Best color? red, blue", Roles{Moderator: true})
	if !strings.Contains(got, "Best color?") {
		t.Fatalf("mod poll start got %q", got)
	}
	// Plain chat is a vote.
	if got := say(r, "viewer", "red"); got != "" {
		t.Fatalf("vote should be silent, got %q", got)
	}
	status := say(r, "viewer", "!pollstatus")
	if !strings.Contains(status, "red: 1") {
		t.Fatalf("status %q", status)
	}
	// Only mods can force-end.
	if got := say(r, "viewer", "!endpoll"); got != "" {
		t.Fatalf("viewer endpoll got %q", got)
	}
	if got := sayAs(r, "modguy", "!endpoll", Roles{Moderator: true}); !strings.Contains(got, "red") {
		t.Fatalf("force end got %q", got)
	}
}

func TestSubCannotStartPollByDefault(t *testing.T) {
	r, _ := testRouter(t)
	if got := sayAs(r, "subber", "!poll Q? a, b", Roles{Subscriber: true}); got != "" {
		t.Fatalf("sub poll start should be silent, got %q", got)
	}
	r.Cfg.PollStartSub = true
	if got := sayAs(r, "subber", "!poll Q? a, b", Roles{Subscriber: true}); got == "" {
		t.Fatal("sub poll start should work once enabled")
	}
}

func TestModOnlyEvents(t *testing.T) {
	r, _ := testRouter(t)

	for _, cmd := range []string{"!raffle go 100", "!chipdrop go 100", "!challenge 10", "!boss 200"} {
		if got := say(r, "viewer", cmd); got != "" {
			t.Fatalf("%s by viewer got %q", cmd, got)
		}
	}
	if got := sayAs(r, "streamer", "!raffle go 100", Roles{Broadcaster: true}); !strings.Contains(got, "RAFFLE") {
		t.Fatalf("got %q", got)
	}
	// Keyword entry is passive and silent.
	if got := say(r, "viewer", "go"); got != "" {
		t.Fatalf("raffle entry got %q", got)
	}
}

func TestDuelFlow(t *testing.T) {
	r, _ := testRouter(t)

	got := say(r, "alice", "!duel @Bob 40")
	if !strings.Contains(got, "bob") {
		t.Fatalf("duel challenge got %q", got)
	}
	if bal := say(r, "alice", "!chips"); !strings.Contains(bal, "60 chips") {
		t.Fatalf("escrow missing: %q", bal)
	}
	got = say(r, "bob", "!accept")
	if !strings.Contains(got, "80") {
		t.Fatalf("accept got %q", got)
	}
	// Pot conservation: 200 total across both, minus nothing.
	a := say(r, "alice", "!chips")
	b := say(r, "bob", "!chips")
	if !(strings.Contains(a, "140") && strings.Contains(b, "60")) &&
		!(strings.Contains(a, "60") && strings.Contains(b, "140")) {
		t.Fatalf("pot not conserved: %q %q", a, b)
	}
}

func TestBlackjackThroughRouter(t *testing.T) {
	r, _ := testRouter(t)

	got := say(r, "alice", "!deal 20")
	if got == "" {
		t.Fatal("deal should reply")
	}
	// Either a natural resolved immediately or a live hand with actions.
	if strings.Contains(got, "!hit") {
		if got := say(r, "alice", "!stand"); got == "" {
			t.Fatal("stand should reply")
		}
	}
	// No hand left either way.
	if got := say(r, "alice", "!hit"); !strings.Contains(got, "no active hand") {
		t.Fatalf("hit with no hand got %q", got)
	}
}

func TestDailyBonusOnFirstActivity(t *testing.T) {
	r, _ := testRouter(t)
	r.Ledger.DailyBonus = 25

	say(r, "alice", "hello chat")
	if got := say(r, "alice", "!chips"); !strings.Contains(got, "125 chips") {
		t.Fatalf("daily bonus missing: %q", got)
	}
	// Second day boundary not crossed; no double grant.
	say(r, "alice", "hello again")
	if got := say(r, "alice", "!chips"); !strings.Contains(got, "125 chips") {
		t.Fatalf("daily granted twice: %q", got)
	}
}

func TestAmountArg(t *testing.T) {
	cases := []struct {
		args []string
		def  int64
		want int64
	}{
		{nil, 0, 0},
		{[]string{"50"}, 0, 50},
		{[]string{"abc"}, 10, 10},
		{[]string{"-5"}, 10, 10},
	}
	for _, tc := range cases {
		if got := amountArg(tc.args, tc.def); got != tc.want {
			t.Errorf("amountArg(%v, %d) = %d, want %d", tc.args, tc.def, got, tc.want)
		}
	}
}

// Run with -race: the engines must not share a rand source, since each
// service's mutex only guards its own draws.
func TestConcurrentGamesAcrossEngines(t *testing.T) {
	r, _ := testRouter(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := fmt.Sprintf("user%d", n)
			say(r, user, "!deal 5")
			say(r, user, "!war 5")
			say(r, user, "!heist 5")
		}(i)
	}
	wg.Wait()
}

func TestRouletteUsageMatchesValidation(t *testing.T) {
	r, _ := testRouter(t)
	got := say(r, "alice", "!roulette")
	if !strings.Contains(got, "red|black|1-36") {
		t.Fatalf("usage = %q, want the 1-36 range the game accepts", got)
	}
}

func TestPassiveMessageEndsOverduePoll(t *testing.T) {
	r, _ := testRouter(t)
	now := time.Now()
	r.Polls.Now = func() time.Time { return now }

	sayAs(r, "modguy", "!poll Best color? red, blue", Roles{Moderator: true})
	say(r, "viewer", "red")

	now = now.Add(61 * time.Second)
	got := say(r, "viewer", "just chatting")
	if !strings.Contains(got, `"red" wins`) {
		t.Fatalf("overdue poll should end on plain chat, got %q", got)
	}
}

func TestParsePoll(t *testing.T) {
	q, opts := parsePoll("Best snack? chips, salsa, queso")
	if q != "Best snack?" {
		t.Fatalf("question %q", q)
	}
	if len(opts) != 3 || opts[0] != "chips" || opts[2] != "queso" {
		t.Fatalf("options %v", opts)
	}
	if q, opts := parsePoll("no question mark here"); q != "" || opts != nil {
		t.Fatalf("got %q %v", q, opts)
	}
}
