package economy

import (
	"context"
	"fmt"
	"time"
)

// Milestone bonuses paid when a win streak reaches the given length.
var winMilestones = map[int64]int64{
	3:  50,
	5:  150,
	10: 500,
}

// Consolation paid once when a loss streak hits this length.
const (
	pityStreakLen   = 7
	pityStreakBonus = 75
)

// RecordWin bumps the user's win streak, clears the loss streak, and pays any
// milestone bonus. It returns the bonus paid (0 for most wins) and the streak
// length.
func (l *Ledger) RecordWin(ctx context.Context, user string) (bonus, streak int64, err error) {
	if _, err := l.Store.Del(ctx, "streak:loss:"+user); err != nil {
		return 0, 0, fmt.Errorf("clear loss streak %s: %w", user, err)
	}
	streak, err = l.Store.Incr(ctx, "streak:win:"+user, 1)
	if err != nil {
		return 0, 0, fmt.Errorf("win streak %s: %w", user, err)
	}
	bonus = winMilestones[streak]
	if bonus > 0 {
		if _, err := l.Credit(ctx, user, bonus); err != nil {
			return 0, streak, err
		}
	}
	return bonus, streak, nil
}

// RecordLoss bumps the loss streak, clears the win streak, and pays the pity
// bonus exactly at the threshold length.
func (l *Ledger) RecordLoss(ctx context.Context, user string) (bonus, streak int64, err error) {
	if _, err := l.Store.Del(ctx, "streak:win:"+user); err != nil {
		return 0, 0, fmt.Errorf("clear win streak %s: %w", user, err)
	}
	streak, err = l.Store.Incr(ctx, "streak:loss:"+user, 1)
	if err != nil {
		return 0, 0, fmt.Errorf("loss streak %s: %w", user, err)
	}
	if streak == pityStreakLen {
		bonus = pityStreakBonus
		if _, err := l.Credit(ctx, user, bonus); err != nil {
			return 0, streak, err
		}
	}
	return bonus, streak, nil
}

// ClaimDaily grants the daily bonus on the user's first command of a calendar
// day (UTC). It returns the amount credited, 0 if already claimed today.
func (l *Ledger) ClaimDaily(ctx context.Context, user string, now time.Time) (int64, error) {
	if l.DailyBonus <= 0 {
		return 0, nil
	}
	today := now.UTC().Format("2006-01-02")
	key := "daily:" + user
	stamp, ok, err := l.Store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("daily stamp %s: %w", user, err)
	}
	if ok && stamp == today {
		return 0, nil
	}
	// 48h TTL keeps abandoned stamps from accumulating.
	if err := l.Store.Set(ctx, key, today, 48*time.Hour); err != nil {
		return 0, fmt.Errorf("write daily stamp %s: %w", user, err)
	}
	if _, err := l.Credit(ctx, user, l.DailyBonus); err != nil {
		return 0, err
	}
	return l.DailyBonus, nil
}
