package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"galley/api/internal/auth"
	"galley/api/internal/config"
	"galley/api/internal/session"
	"galley/api/internal/store"
)

// ErrInvalidCredentials is returned by Login for a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

const notificationPageSize = 50

// Service owns the in-memory state and coordinates every mutation: validate,
// mutate under one lock, flush through the gateway. The runtime serves
// requests concurrently, so the lock is what preserves last-write-wins with
// no lost updates.
type Service struct {
	cfg      config.Config
	log      *zap.Logger
	gateway  store.Gateway
	sessions session.Store
	password *auth.PasswordVerifier
	events   *auth.EventLog

	mu    sync.RWMutex
	state *store.State

	now func() time.Time
}

func New(cfg config.Config, log *zap.Logger, gateway store.Gateway, sessions session.Store) *Service {
	return &Service{
		cfg:      cfg,
		log:      log,
		gateway:  gateway,
		sessions: sessions,
		password: auth.NewPasswordVerifier(cfg.Password, cfg.PasswordHash),
		events:   auth.NewEventLog(1000),
		now:      time.Now,
	}
}

// Bootstrap loads persisted state, seeding and flushing a fresh document set
// when none exists yet.
func (s *Service) Bootstrap(ctx context.Context) error {
	state, err := s.gateway.Load(ctx)
	if err != nil {
		return err
	}
	if state == nil {
		state = store.SeedState()
		if err := s.gateway.Save(ctx, state); err != nil {
			return err
		}
		s.log.Info("seeded fresh state", zap.Int("sections", len(state.Sections)))
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.gateway.Ping(ctx)
}

func (s *Service) Users() []string {
	out := make([]string, len(s.cfg.Users))
	copy(out, s.cfg.Users)
	return out
}

func (s *Service) SecurityEvents(limit int) []auth.Event {
	return s.events.Recent(limit)
}

// flushLocked persists the current state. Per the durability contract a
// failed flush is logged and the in-memory mutation stands; there is no
// rollback. Callers must hold the write lock.
func (s *Service) flushLocked(ctx context.Context) {
	if err := s.gateway.Save(ctx, s.state); err != nil {
		s.log.Error("state flush failed", zap.Error(err))
	}
}

// ── Authentication ──

// Login checks the application password and creates a session on success.
// Failures sleep a randomized delay before returning. Every attempt lands in
// the security event log.
func (s *Service) Login(ctx context.Context, password, source, userAgent string) (string, error) {
	if !s.password.Verify(password) {
		s.events.Record(auth.Event{Time: s.now(), Kind: auth.EventLoginFailure, Source: source, UserAgent: userAgent})
		time.Sleep(auth.FailureDelay())
		return "", ErrInvalidCredentials
	}
	token, err := s.sessions.Create(ctx, s.cfg.SessionTTL)
	if err != nil {
		return "", err
	}
	s.events.Record(auth.Event{Time: s.now(), Kind: auth.EventLoginSuccess, Source: source, UserAgent: userAgent})
	return token, nil
}

func (s *Service) Verify(ctx context.Context, token string) bool {
	ok, err := s.sessions.Validate(ctx, token)
	if err != nil {
		s.log.Error("session validation failed", zap.Error(err))
		return false
	}
	return ok
}

func (s *Service) Logout(ctx context.Context, token, source, userAgent string) {
	if token == "" {
		return
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		s.log.Error("session revoke failed", zap.Error(err))
		return
	}
	s.events.Record(auth.Event{Time: s.now(), Kind: auth.EventLogout, Source: source, UserAgent: userAgent})
}

// RecordRateLimited lands throttled requests in the security event log.
func (s *Service) RecordRateLimited(source, userAgent string) {
	s.events.Record(auth.Event{Time: s.now(), Kind: auth.EventRateLimited, Source: source, UserAgent: userAgent})
}

// ── Sections ──

func (s *Service) Sections(ctx context.Context) []store.Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ListSections()
}

func (s *Service) Section(ctx context.Context, id int) (store.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	section, ok := s.state.GetSection(id)
	if !ok {
		return store.Section{}, notFound("section not found")
	}
	return section, nil
}

func (s *Service) UpdateSection(ctx context.Context, id int, title, content string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return validationError("title is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.UpdateSection(id, title, content, s.now()) {
		return notFound("section not found")
	}
	s.flushLocked(ctx)
	return nil
}

// ── Discussions ──

func (s *Service) Discussions(ctx context.Context) []store.DiscussionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ListDiscussions()
}

// CreateDiscussion validates input strictly: recognized type, non-empty text,
// known author. A dangling section_id is accepted; display joins resolve it
// to an empty title.
func (s *Service) CreateDiscussion(ctx context.Context, sectionID *int, discussionType, text, author string) (store.Discussion, error) {
	if discussionType != store.TypeComment && discussionType != store.TypeQuestion {
		return store.Discussion{}, validationError("type must be comment or question")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Discussion{}, validationError("text is required")
	}
	actor, ok := s.canonicalUser(author)
	if !ok {
		return store.Discussion{}, validationError("author is not a known user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	discussion := s.state.CreateDiscussion(store.NewDiscussion{
		SectionID: sectionID,
		Type:      discussionType,
		Text:      text,
		Author:    actor,
	}, s.othersThan(actor), s.now())
	s.flushLocked(ctx)
	return discussion, nil
}

func (s *Service) AddReply(ctx context.Context, discussionID int, text, author string) (store.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Reply{}, validationError("text is required")
	}
	actor, ok := s.canonicalUser(author)
	if !ok {
		return store.Reply{}, validationError("author is not a known user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	reply, found := s.state.AddReply(discussionID, text, actor, s.othersThan(actor), s.now())
	if !found {
		return store.Reply{}, notFound("discussion not found")
	}
	s.flushLocked(ctx)
	return reply, nil
}

func (s *Service) SetResolved(ctx context.Context, discussionID int, resolved bool, resolvedBy string) error {
	actor := ""
	if resolved {
		canonical, ok := s.canonicalUser(resolvedBy)
		if !ok {
			return validationError("resolved_by is not a known user")
		}
		actor = canonical
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.SetResolved(discussionID, resolved, actor, s.now()) {
		return notFound("discussion not found")
	}
	s.flushLocked(ctx)
	return nil
}

func (s *Service) DeleteDiscussion(ctx context.Context, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DeleteDiscussion(id)
	s.flushLocked(ctx)
}

// ── Notifications ──

func (s *Service) NotificationsFor(ctx context.Context, user string) ([]store.Notification, error) {
	canonical, ok := s.canonicalUser(user)
	if !ok {
		return nil, validationError("unknown user")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.NotificationsFor(canonical, notificationPageSize), nil
}

// MarkNotificationRead is a no-op for unknown ids; the flush still runs so
// the call stays uniformly durable.
func (s *Service) MarkNotificationRead(ctx context.Context, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.MarkRead(id)
	s.flushLocked(ctx)
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, user string) error {
	canonical, ok := s.canonicalUser(user)
	if !ok {
		return validationError("unknown user")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.MarkAllRead(canonical)
	s.flushLocked(ctx)
	return nil
}

// ── Stats ──

// Stats recomputes aggregate counts on every call. The franciscoItems and
// wifeItems keys are the wire contract for the first and second registry
// users.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comments, questions, resolved, byAuthor := s.state.DiscussionCounts()
	payload := map[string]any{
		"totalSections":  len(s.state.Sections),
		"totalComments":  comments,
		"totalQuestions": questions,
		"resolved":       resolved,
		"pending":        comments + questions - resolved,
		"franciscoItems": 0,
		"wifeItems":      0,
	}
	if len(s.cfg.Users) > 0 {
		payload["franciscoItems"] = byAuthor[s.cfg.Users[0]]
	}
	if len(s.cfg.Users) > 1 {
		payload["wifeItems"] = byAuthor[s.cfg.Users[1]]
	}
	return payload
}

// ── User registry ──

func (s *Service) canonicalUser(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, user := range s.cfg.Users {
		if user == name {
			return user, true
		}
	}
	return "", false
}

func (s *Service) othersThan(actor string) []string {
	others := make([]string, 0, len(s.cfg.Users))
	for _, user := range s.cfg.Users {
		if user != actor {
			others = append(others, user)
		}
	}
	return others
}
