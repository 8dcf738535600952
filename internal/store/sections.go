package store

import "time"

func (s *State) ListSections() []Section {
	out := make([]Section, len(s.Sections))
	copy(out, s.Sections)
	return out
}

func (s *State) GetSection(id int) (Section, bool) {
	for _, section := range s.Sections {
		if section.ID == id {
			return section, true
		}
	}
	return Section{}, false
}

// UpdateSection rewrites a section's title and content and stamps updated_at.
// Returns false when no section has the given id.
func (s *State) UpdateSection(id int, title, content string, now time.Time) bool {
	for i := range s.Sections {
		if s.Sections[i].ID == id {
			s.Sections[i].Title = title
			s.Sections[i].Content = content
			at := now
			s.Sections[i].UpdatedAt = &at
			return true
		}
	}
	return false
}

func (s *State) sectionTitle(id *int) string {
	if id == nil {
		return ""
	}
	if section, ok := s.GetSection(*id); ok {
		return section.Title
	}
	return ""
}
