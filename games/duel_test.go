package games

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestDuelEscrowsChallengerWager(t *testing.T) {
	ctx := context.Background()
	svc := testService(1)

	reply, err := svc.Duel(ctx, "alice", "@bob", 40)
	if err != nil {
		t.Fatalf("duel: %v", err)
	}
	if !strings.Contains(reply, "challenges you") {
		t.Fatalf("reply = %q", reply)
	}
	bal, _ := svc.Ledger.GetBalance(ctx, "alice")
	if bal != 60 {
		t.Fatalf("challenger balance = %d, want 60 (wager escrowed)", bal)
	}
}

func TestDuelSelfAndUsage(t *testing.T) {
	ctx := context.Background()
	svc := testService(1)

	if reply, _ := svc.Duel(ctx, "alice", "@alice", 10); !strings.Contains(reply, "yourself") {
		t.Fatalf("reply = %q", reply)
	}
	if reply, _ := svc.Duel(ctx, "alice", "", 10); !strings.Contains(reply, "usage") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestAcceptResolvesPotConservation(t *testing.T) {
	ctx := context.Background()
	svc := testService(3)

	if _, err := svc.Duel(ctx, "alice", "bob", 40); err != nil {
		t.Fatalf("duel: %v", err)
	}
	reply, err := svc.Accept(ctx, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !strings.Contains(reply, "pot") {
		t.Fatalf("reply = %q", reply)
	}
	aliceBal, _ := svc.Ledger.GetBalance(ctx, "alice")
	bobBal, _ := svc.Ledger.GetBalance(ctx, "bob")
	if aliceBal+bobBal != 200 {
		t.Fatalf("chips not conserved: alice %d + bob %d != 200", aliceBal, bobBal)
	}
	if aliceBal != 140 && aliceBal != 60 {
		t.Fatalf("alice balance = %d, want 140 (won) or 60 (lost)", aliceBal)
	}
	// The pending record must be gone either way.
	if d, _ := svc.loadDuel(ctx, "bob"); d != nil {
		t.Fatal("pending duel should be deleted after resolution")
	}
}

func TestAcceptWithoutChallenge(t *testing.T) {
	ctx := context.Background()
	svc := testService(1)

	reply, err := svc.Accept(ctx, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !strings.Contains(reply, "nobody has challenged") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestExpiredDuelRefundsChallenger(t *testing.T) {
	ctx := context.Background()
	svc := testService(1)
	now := time.Now()
	svc.Now = func() time.Time { return now }

	if _, err := svc.Duel(ctx, "alice", "bob", 40); err != nil {
		t.Fatalf("duel: %v", err)
	}
	now = now.Add(duelWindow + time.Second)

	reply, err := svc.Accept(ctx, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !strings.Contains(reply, "nobody has challenged") {
		t.Fatalf("reply = %q", reply)
	}
	bal, _ := svc.Ledger.GetBalance(ctx, "alice")
	if bal != 100 {
		t.Fatalf("challenger balance = %d, want 100 after refund", bal)
	}
}

func TestSecondDuelAgainstSameTargetBlocked(t *testing.T) {
	ctx := context.Background()
	svc := testService(1)

	if _, err := svc.Duel(ctx, "alice", "bob", 10); err != nil {
		t.Fatalf("duel: %v", err)
	}
	reply, err := svc.Duel(ctx, "carol", "bob", 10)
	if err != nil {
		t.Fatalf("duel: %v", err)
	}
	if !strings.Contains(reply, "already has a duel pending") {
		t.Fatalf("reply = %q", reply)
	}
	if bal, _ := svc.Ledger.GetBalance(ctx, "carol"); bal != 100 {
		t.Fatalf("carol balance = %d, want untouched 100", bal)
	}
}
