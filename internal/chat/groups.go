package chat

import "time"

type Group struct {
	Label    string
	Sessions []Session
}

var groupOrder = []string{"Today", "Yesterday", "This Week", "Older"}

// GroupByDate buckets sessions by UpdatedAt relative to now, in now's
// location. Empty buckets are omitted.
func GroupByDate(sessions []Session, now time.Time) []Group {
	loc := now.Location()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	yesterday := today.AddDate(0, 0, -1)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	buckets := make(map[string][]Session, len(groupOrder))
	for _, s := range sessions {
		at := s.UpdatedAt.In(loc)
		var label string
		switch {
		case !at.Before(today) && at.Before(today.AddDate(0, 0, 1)):
			label = "Today"
		case !at.Before(yesterday) && at.Before(today):
			label = "Yesterday"
		case at.After(weekAgo):
			label = "This Week"
		default:
			label = "Older"
		}
		buckets[label] = append(buckets[label], s)
	}

	out := make([]Group, 0, len(buckets))
	for _, label := range groupOrder {
		if len(buckets[label]) == 0 {
			continue
		}
		SortByUpdated(buckets[label])
		out = append(out, Group{Label: label, Sessions: buckets[label]})
	}
	return out
}
