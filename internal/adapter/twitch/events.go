package twitch

import (
	"strconv"

	twitchirc "github.com/gempir/go-twitch-irc/v4"

	"github.com/Saileeich/Saileeich-TTS/internal/domain"
)

// Badges that mark an author as part of the channel's committed audience.
var followerBadges = []string{"subscriber", "founder", "vip", "moderator", "broadcaster"}

// USERNOTICE msg-ids that count as gifting.
var giftNotices = map[string]struct{}{
	"subgift":             {},
	"submysterygift":      {},
	"anonsubgift":         {},
	"giftpaidupgrade":     {},
	"anongiftpaidupgrade": {},
}

func toChatEvent(m twitchirc.PrivateMessage) domain.ChatEvent {
	authorID := m.User.ID
	if authorID == "" {
		authorID = m.User.Name
	}
	displayName := m.User.DisplayName
	if displayName == "" {
		displayName = m.User.Name
	}

	return domain.ChatEvent{
		AuthorID:    authorID,
		DisplayName: displayName,
		Text:        m.Message,
		IsFollower:  hasFollowerBadge(m.User.Badges),
		HasSentGift: m.Bits > 0,
	}
}

// toGiftEvent reports whether a USERNOTICE is a gift and who sent it.
func toGiftEvent(m twitchirc.UserNoticeMessage) (domain.GiftEvent, bool) {
	_, isGift := giftNotices[m.MsgID]
	if !isGift && !hasBits(m.Tags) {
		return domain.GiftEvent{}, false
	}

	authorID := m.User.ID
	if authorID == "" {
		authorID = m.User.Name
	}
	return domain.GiftEvent{AuthorID: authorID}, true
}

// Subscriber badge versions start at 0, so presence is what counts.
func hasFollowerBadge(badges map[string]int) bool {
	for _, name := range followerBadges {
		if _, ok := badges[name]; ok {
			return true
		}
	}
	return false
}

func hasBits(tags map[string]string) bool {
	n, err := strconv.Atoi(tags["bits"])
	return err == nil && n > 0
}
