package store

import (
	"sort"
	"time"
)

func (s *State) notify(user, notificationType, message string, discussionID int, now time.Time) {
	s.Notifications = append(s.Notifications, Notification{
		ID:           s.NextID.Notification,
		User:         user,
		Type:         notificationType,
		Message:      message,
		DiscussionID: discussionID,
		Read:         false,
		CreatedAt:    now,
	})
	s.NextID.Notification++
}

// NotificationsFor returns at most limit notifications for the user, newest
// first. Equal timestamps keep later-inserted entries first.
func (s *State) NotificationsFor(user string, limit int) []Notification {
	matched := make([]Notification, 0)
	for i := len(s.Notifications) - 1; i >= 0; i-- {
		if s.Notifications[i].User == user {
			matched = append(matched, s.Notifications[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// MarkRead flips a single notification to read. No-op when the id is unknown.
func (s *State) MarkRead(id int) {
	for i := range s.Notifications {
		if s.Notifications[i].ID == id {
			s.Notifications[i].Read = true
			return
		}
	}
}

// MarkAllRead flips every notification belonging to user to read; other
// users' notifications are untouched.
func (s *State) MarkAllRead(user string) {
	for i := range s.Notifications {
		if s.Notifications[i].User == user {
			s.Notifications[i].Read = true
		}
	}
}

// UnreadCount is derived on every call, never stored.
func (s *State) UnreadCount(user string) int {
	count := 0
	for _, n := range s.Notifications {
		if n.User == user && !n.Read {
			count++
		}
	}
	return count
}
