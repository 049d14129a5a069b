package storage

import (
	"sort"
	"time"

	"lumora/model"
)

// Group labels, in display order.
const (
	GroupToday     = "Today"
	GroupYesterday = "Yesterday"
	GroupLastWeek  = "Previous 7 days"
	GroupOlder     = "Older"
)

type ConversationGroup struct {
	Label         string
	Conversations []model.Conversation
}

// Group buckets conversations by the calendar day of UpdatedAt relative to
// now, in now's location. Each bucket is sorted newest first and empty
// buckets are omitted.
func Group(now time.Time, conversations []model.Conversation) []ConversationGroup {
	loc := now.Location()
	today := startOfDay(now)
	yesterday := today.AddDate(0, 0, -1)
	weekAgo := today.AddDate(0, 0, -7)

	buckets := map[string][]model.Conversation{}
	for _, conv := range conversations {
		day := startOfDay(conv.UpdatedAt.In(loc))

		var label string
		switch {
		case !day.Before(today):
			label = GroupToday
		case !day.Before(yesterday):
			label = GroupYesterday
		case !day.Before(weekAgo):
			label = GroupLastWeek
		default:
			label = GroupOlder
		}
		buckets[label] = append(buckets[label], conv)
	}

	var groups []ConversationGroup
	for _, label := range []string{GroupToday, GroupYesterday, GroupLastWeek, GroupOlder} {
		convs := buckets[label]
		if len(convs) == 0 {
			continue
		}
		sort.SliceStable(convs, func(i, j int) bool {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		})
		groups = append(groups, ConversationGroup{Label: label, Conversations: convs})
	}
	return groups
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
