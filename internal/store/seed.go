package store

// SeedState returns a fresh state with the initial document sections and all
// counters at 1. Used when no persisted state exists yet.
func SeedState() *State {
	return &State{
		Sections:      seedSections(),
		Discussions:   []Discussion{},
		Notifications: []Notification{},
		NextID:        Counters{Discussion: 1, Reply: 1, Notification: 1},
	}
}

func seedSections() []Section {
	return []Section{
		{
			ID:    1,
			Title: "Overview",
			Content: "## Why this document exists\n\n" +
				"A shared place to read through the whole plan, leave comments and " +
				"questions on each part, and keep track of what we have settled.\n\n" +
				"- Read each section\n- Attach comments or questions\n- Mark items resolved once we agree",
		},
		{
			ID:    2,
			Title: "Finances",
			Content: "## Budget and savings\n\n" +
				"Current savings, the monthly budget we are committing to, and the " +
				"buffer we want before making the move.\n\n" +
				"| Item | Amount |\n|---|---|\n| Savings today | to fill in |\n| Monthly budget | to fill in |\n| Target buffer | 6 months |",
		},
		{
			ID:    3,
			Title: "Location",
			Content: "## Where\n\n" +
				"Shortlist of neighborhoods with commute times, rent ranges, and " +
				"notes from visits. Nothing here is final until both of us sign off.",
		},
		{
			ID:    4,
			Title: "Timeline",
			Content: "## When\n\n" +
				"Working backwards from the lease end date:\n\n" +
				"1. Decide neighborhood\n2. Book viewings\n3. Give notice\n4. Move",
		},
		{
			ID:    5,
			Title: "Risks",
			Content: "## What could go wrong\n\n" +
				"Known unknowns and what we do about each. Add a question to this " +
				"section for anything that worries you and is not listed yet.",
		},
		{
			ID:    6,
			Title: "Next Steps",
			Content: "## Immediate actions\n\n" +
				"Short list of things one of us owns this week. Resolve the matching " +
				"discussion when an item is done.",
		},
	}
}
