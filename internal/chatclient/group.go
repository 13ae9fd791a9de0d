package chatclient

import (
	"time"

	"github.com/samber/lo"
	"github.com/tageampi/vintohub/internal/models"
)

const dayLayout = "2006-01-02"

// DateGroup is the run of messages sent on one calendar day.
type DateGroup struct {
	Day      string
	Date     time.Time
	Messages []models.Message
}

// GroupByDate buckets messages by calendar day in loc, keeping the input
// order inside each bucket and ordering buckets by first appearance.
func GroupByDate(messages []models.Message, loc *time.Location) []DateGroup {
	if loc == nil {
		loc = time.Local
	}
	dayOf := func(message models.Message) string {
		return message.CreatedAt.In(loc).Format(dayLayout)
	}

	days := lo.Uniq(lo.Map(messages, func(message models.Message, _ int) string {
		return dayOf(message)
	}))
	buckets := lo.GroupBy(messages, dayOf)

	return lo.Map(days, func(day string, _ int) DateGroup {
		date, _ := time.ParseInLocation(dayLayout, day, loc)
		return DateGroup{
			Day:      day,
			Date:     date,
			Messages: buckets[day],
		}
	})
}

// Label renders a day header relative to now, the way chat UIs do.
func (g DateGroup) Label(now time.Time) string {
	today := now.In(g.Date.Location()).Format(dayLayout)
	yesterday := now.In(g.Date.Location()).AddDate(0, 0, -1).Format(dayLayout)

	switch g.Day {
	case today:
		return "Today"
	case yesterday:
		return "Yesterday"
	default:
		return g.Date.Format("January 2, 2006")
	}
}
