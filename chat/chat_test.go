package chat

import (
	"testing"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-arcade/backend/bot"
	"github.com/onnwee/chat-arcade/backend/config"
)

func TestRolesForBadges(t *testing.T) {
	b := New(&config.Config{OGUsers: []string{"OldTimer"}}, nil)

	cases := []struct {
		name   string
		user   string
		badges map[string]int
		want   bot.Roles
	}{
		{"plain viewer", "rando", nil, bot.Roles{}},
		{"broadcaster", "streamer", map[string]int{"broadcaster": 1}, bot.Roles{Broadcaster: true}},
		{"moderator", "modguy", map[string]int{"moderator": 1}, bot.Roles{Moderator: true}},
		{"vip sub", "fancy", map[string]int{"vip": 1, "subscriber": 12}, bot.Roles{VIP: true, Subscriber: true}},
		{"founder counts as sub", "early", map[string]int{"founder": 1}, bot.Roles{Subscriber: true}},
		{"og from config", "oldtimer", nil, bot.Roles{OG: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := twitch.PrivateMessage{User: twitch.User{Name: tc.user, Badges: tc.badges}}
			if got := b.rolesFor(msg); got != tc.want {
				t.Errorf("rolesFor = %+v, want %+v", got, tc.want)
			}
		})
	}
}
