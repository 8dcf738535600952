// Package store holds the application state: document sections, discussions
// with their reply threads, per-user notifications, and the id counters that
// number them. The State type is a plain in-memory structure; callers are
// responsible for serializing access (the app service wraps every mutation in
// one critical section and flushes through a Gateway afterwards).
package store

import "time"

const (
	TypeComment  = "comment"
	TypeQuestion = "question"
	TypeReply    = "reply"
)

// Section is a fixed block of the reviewed document. Sections come from the
// seed (or a previously persisted state) and are never created or deleted at
// runtime; an explicit edit rewrites title and content.
type Section struct {
	ID        int        `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Discussion is a top-level comment or question, optionally anchored to a
// section (SectionID nil means document-wide).
type Discussion struct {
	ID         int        `json:"id"`
	SectionID  *int       `json:"section_id"`
	Type       string     `json:"type"`
	Text       string     `json:"text"`
	Author     string     `json:"author"`
	Resolved   bool       `json:"resolved"`
	ResolvedBy *string    `json:"resolved_by"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `json:"created_at"`
	Replies    []Reply    `json:"replies"`
}

// DiscussionView is a Discussion with the section title joined in for
// display. A dangling section reference yields an empty title.
type DiscussionView struct {
	Discussion
	SectionTitle string `json:"section_title"`
}

// Reply is an immutable message appended to a discussion's thread. Insertion
// order is chronological order.
type Reply struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification records another user's activity on a discussion. The message
// is rendered once at creation and never recomputed; DiscussionID may dangle
// after the discussion is deleted.
type Notification struct {
	ID           int       `json:"id"`
	User         string    `json:"user"`
	Type         string    `json:"type"`
	Message      string    `json:"message"`
	DiscussionID int       `json:"discussion_id"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"created_at"`
}

// Counters are the persisted next-id values. Section ids come from the seed,
// not from a counter.
type Counters struct {
	Discussion   int `json:"discussion"`
	Reply        int `json:"reply"`
	Notification int `json:"notification"`
}

// State is the whole persisted document. Its JSON encoding is the on-disk
// file layout.
type State struct {
	Sections      []Section      `json:"sections"`
	Discussions   []Discussion   `json:"discussions"`
	Notifications []Notification `json:"notifications"`
	NextID        Counters       `json:"nextId"`
}
