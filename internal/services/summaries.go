package services

import (
	"sort"

	"github.com/samber/lo"
	"github.com/tageampi/vintohub/internal/models"
)

// BuildConversationSummaries derives one summary per counterpart of userID
// from the raw message log. Usernames are left empty. Summaries are ordered
// newest conversation first.
func BuildConversationSummaries(userID int64, messages []models.Message) []models.ConversationSummary {
	involved := lo.Filter(messages, func(m models.Message, _ int) bool {
		return m.SenderID == userID || m.ReceiverID == userID
	})
	byCounterpart := lo.GroupBy(involved, func(m models.Message) int64 {
		return m.Counterpart(userID)
	})

	summaries := make([]models.ConversationSummary, 0, len(byCounterpart))
	for counterpart, thread := range byCounterpart {
		last := lo.MaxBy(thread, func(a, b models.Message) bool {
			return b.Before(a)
		})
		unread := lo.CountBy(thread, func(m models.Message) bool {
			return m.ReceiverID == userID && m.SenderID == counterpart && !m.Read
		})
		summaries = append(summaries, models.ConversationSummary{
			UserID:      counterpart,
			LastMessage: last,
			UnreadCount: unread,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[j].LastMessage.Before(summaries[i].LastMessage)
	})
	return summaries
}
