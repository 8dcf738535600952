package store

import (
	"fmt"
	"time"
)

// NewDiscussion carries validated input for CreateDiscussion. The caller
// (the app service) owns validation; the store trusts its input.
type NewDiscussion struct {
	SectionID *int
	Type      string
	Text      string
	Author    string
}

// CreateDiscussion assigns the next discussion id, appends the discussion,
// and fans out one unread notification to each user in others.
func (s *State) CreateDiscussion(in NewDiscussion, others []string, now time.Time) Discussion {
	discussion := Discussion{
		ID:        s.NextID.Discussion,
		SectionID: in.SectionID,
		Type:      in.Type,
		Text:      in.Text,
		Author:    in.Author,
		Resolved:  false,
		CreatedAt: now,
		Replies:   []Reply{},
	}
	s.NextID.Discussion++
	s.Discussions = append(s.Discussions, discussion)

	message := createdMessage(in.Author, in.Type, s.sectionTitle(in.SectionID))
	for _, user := range others {
		s.notify(user, in.Type, message, discussion.ID, now)
	}
	return discussion
}

// AddReply appends a reply to the discussion's thread and fans out one
// notification per user in others. Returns false when the discussion does
// not exist; in that case nothing is mutated.
func (s *State) AddReply(discussionID int, text, author string, others []string, now time.Time) (Reply, bool) {
	for i := range s.Discussions {
		if s.Discussions[i].ID != discussionID {
			continue
		}
		reply := Reply{
			ID:        s.NextID.Reply,
			Text:      text,
			Author:    author,
			CreatedAt: now,
		}
		s.NextID.Reply++
		s.Discussions[i].Replies = append(s.Discussions[i].Replies, reply)

		message := fmt.Sprintf("%s replied to a %s", author, s.Discussions[i].Type)
		for _, user := range others {
			s.notify(user, TypeReply, message, discussionID, now)
		}
		return reply, true
	}
	return Reply{}, false
}

// SetResolved toggles the resolved flag. resolved_by and resolved_at are set
// together when resolving and cleared together when reopening; reopening
// always drops prior attribution. No notification is emitted.
func (s *State) SetResolved(discussionID int, resolved bool, resolvedBy string, now time.Time) bool {
	for i := range s.Discussions {
		if s.Discussions[i].ID != discussionID {
			continue
		}
		s.Discussions[i].Resolved = resolved
		if resolved {
			by := resolvedBy
			at := now
			s.Discussions[i].ResolvedBy = &by
			s.Discussions[i].ResolvedAt = &at
		} else {
			s.Discussions[i].ResolvedBy = nil
			s.Discussions[i].ResolvedAt = nil
		}
		return true
	}
	return false
}

// DeleteDiscussion removes the discussion if present. Idempotent; referencing
// notifications are left in place with a dangling discussion_id.
func (s *State) DeleteDiscussion(id int) {
	for i := range s.Discussions {
		if s.Discussions[i].ID == id {
			s.Discussions = append(s.Discussions[:i], s.Discussions[i+1:]...)
			return
		}
	}
}

// ListDiscussions returns every discussion with its section title joined in.
func (s *State) ListDiscussions() []DiscussionView {
	out := make([]DiscussionView, 0, len(s.Discussions))
	for _, d := range s.Discussions {
		out = append(out, DiscussionView{
			Discussion:   d,
			SectionTitle: s.sectionTitle(d.SectionID),
		})
	}
	return out
}

// DiscussionCounts aggregates over current discussions for the stats payload.
func (s *State) DiscussionCounts() (comments, questions, resolved int, byAuthor map[string]int) {
	byAuthor = make(map[string]int)
	for _, d := range s.Discussions {
		switch d.Type {
		case TypeQuestion:
			questions++
		default:
			comments++
		}
		if d.Resolved {
			resolved++
		}
		byAuthor[d.Author]++
	}
	return comments, questions, resolved, byAuthor
}

func createdMessage(author, discussionType, sectionTitle string) string {
	verb := "left a comment"
	if discussionType == TypeQuestion {
		verb = "asked a question"
	}
	if sectionTitle == "" {
		return fmt.Sprintf("%s %s on the document", author, verb)
	}
	return fmt.Sprintf("%s %s on %q", author, verb, sectionTitle)
}
