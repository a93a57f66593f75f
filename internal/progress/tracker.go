// Package progress keeps each user's active crawl attempt in memory and
// synchronizes it with the persistence gateway.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citycrawl/crawl/internal/crawl"
)

var ErrNoActiveCrawl = errors.New("no active crawl")

// Gateway persists progress and history. ActiveProgress returns
// crawl.ErrNotFound when the user has no stored attempt.
type Gateway interface {
	ActiveProgress(ctx context.Context, userID string) (crawl.Progress, error)
	SaveProgress(ctx context.Context, p crawl.Progress) error
	DeleteProgress(ctx context.Context, userID string) error
	AppendHistory(ctx context.Context, h crawl.HistoryEntry) error
}

// ConflictError is returned when starting a crawl while a different one is
// still in progress and the caller has not confirmed abandoning it.
type ConflictError struct {
	ActiveCrawlID   string
	ActiveCrawlName string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("crawl %q is already in progress", e.ActiveCrawlName)
}

// Snapshot is the result of a tracker operation.
type Snapshot struct {
	Progress crawl.Progress
	Crawl    crawl.Definition
	// Synced is false when the last write to the gateway failed and the
	// in-memory copy is ahead of storage.
	Synced  bool
	History *crawl.HistoryEntry
}

// Session is one user's working copy of their active attempt.
type Session struct {
	mu       sync.Mutex
	userID   string
	progress *crawl.Progress
	def      crawl.Definition

	// refs counts in-flight operations; guarded by Tracker.mu.
	refs int
}

type Tracker struct {
	gateway Gateway
	catalog crawl.Catalog
	logger  *slog.Logger
	match   crawl.AnswerMatcher
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

type Option func(*Tracker)

// WithClock overrides the tracker's time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMatcher overrides how riddle answers are compared.
func WithMatcher(m crawl.AnswerMatcher) Option {
	return func(t *Tracker) { t.match = m }
}

func NewTracker(gateway Gateway, catalog crawl.Catalog, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		gateway:  gateway,
		catalog:  catalog,
		logger:   logger,
		match:    crawl.MatchAnswer,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// acquire returns the user's session, creating it if needed. Every call is
// paired with release once the caller has unlocked s.mu.
func (t *Tracker) acquire(userID string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[userID]
	if !ok {
		s = &Session{userID: userID}
		t.sessions[userID] = s
	}
	s.refs++
	return s
}

// release drops the session from the map once no operation holds it and it
// carries no attempt. With refs at zero nobody else can touch s.progress.
func (t *Tracker) release(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.refs--
	if s.refs == 0 && s.progress == nil {
		delete(t.sessions, s.userID)
	}
}

// Sessions reports how many users currently have a session in memory.
func (t *Tracker) Sessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) clock() time.Time { return t.now().UTC() }

// stored returns the user's non-completed attempt, if any. The gateway
// decides which crawl is active; the local copy wins when it is for the same
// crawl or when storage cannot be reached.
func (t *Tracker) stored(ctx context.Context, s *Session) (*crawl.Progress, error) {
	p, err := t.gateway.ActiveProgress(ctx, s.userID)
	switch {
	case errors.Is(err, crawl.ErrNotFound):
		if s.progress != nil && !s.progress.Completed {
			return s.progress, nil
		}
		return nil, nil
	case err != nil:
		t.logger.Warn("loading stored progress", "user_id", s.userID, "error", err)
		if s.progress != nil && !s.progress.Completed {
			return s.progress, nil
		}
		return nil, fmt.Errorf("loading stored progress: %w", err)
	case p.Completed:
		return nil, nil
	case s.progress != nil && s.progress.CrawlID == p.CrawlID:
		return s.progress, nil
	default:
		return &p, nil
	}
}

// Start begins crawlID for the user. If a different crawl is in progress it
// returns a *ConflictError unless confirm is set, in which case the old
// attempt is archived as not finished first.
func (t *Tracker) Start(ctx context.Context, userID, crawlID string, confirm bool) (Snapshot, error) {
	def, err := t.catalog.Crawl(ctx, crawlID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading crawl %q: %w", crawlID, err)
	}

	s := t.acquire(userID)
	defer t.release(s)
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := t.stored(ctx, s)
	if err != nil {
		return Snapshot{}, err
	}

	if active != nil {
		switch {
		case active.CrawlID == crawlID && s.progress != nil && s.progress.CrawlID == crawlID:
			return t.snapshot(s, true), nil
		case active.CrawlID == crawlID:
			snap, err := t.load(ctx, s, *active)
			if err != nil || !snap.Progress.Completed {
				return snap, err
			}
			// The stored attempt was already done and has just been
			// finalized; start a fresh one.
		case !confirm:
			name := active.CrawlID
			if other, err := t.catalog.Crawl(ctx, active.CrawlID); err == nil {
				name = other.Name
			}
			return Snapshot{}, &ConflictError{ActiveCrawlID: active.CrawlID, ActiveCrawlName: name}
		default:
			t.abandon(ctx, *active)
		}
	}

	p, err := crawl.NewProgress(userID, def, t.clock())
	if err != nil {
		return Snapshot{}, fmt.Errorf("starting crawl %q: %w", crawlID, err)
	}
	s.progress = &p
	s.def = def

	t.logger.Info("crawl started", "user_id", userID, "crawl_id", crawlID)
	return t.save(ctx, s), nil
}

// Resume returns the user's active attempt, loading it from storage when the
// session has none in memory.
func (t *Tracker) Resume(ctx context.Context, userID string) (Snapshot, error) {
	s := t.acquire(userID)
	defer t.release(s)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress != nil {
		return t.snapshot(s, true), nil
	}
	saved, err := t.gateway.ActiveProgress(ctx, userID)
	if errors.Is(err, crawl.ErrNotFound) {
		return Snapshot{}, ErrNoActiveCrawl
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading stored progress: %w", err)
	}
	return t.load(ctx, s, saved)
}

func (t *Tracker) load(ctx context.Context, s *Session, saved crawl.Progress) (Snapshot, error) {
	def, err := t.catalog.Crawl(ctx, saved.CrawlID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading crawl %q: %w", saved.CrawlID, err)
	}
	p := crawl.Resume(saved, def.TotalStops())
	s.progress = &p
	s.def = def

	if p.Finished() {
		return t.finish(ctx, s), nil
	}
	return t.snapshot(s, true), nil
}

// active returns the session's attempt, loading it if needed. The caller
// holds s.mu.
func (t *Tracker) active(ctx context.Context, s *Session) error {
	if s.progress != nil {
		return nil
	}
	saved, err := t.gateway.ActiveProgress(ctx, s.userID)
	if errors.Is(err, crawl.ErrNotFound) {
		return ErrNoActiveCrawl
	}
	if err != nil {
		return fmt.Errorf("loading stored progress: %w", err)
	}
	snap, err := t.load(ctx, s, saved)
	if err != nil {
		return err
	}
	if snap.Progress.Completed {
		return ErrNoActiveCrawl
	}
	return nil
}

// CompleteStop evaluates the stop's completion rule against answer and, if
// it passes, records the stop. Wrong answers and locked stops leave the
// attempt unchanged.
func (t *Tracker) CompleteStop(ctx context.Context, userID string, stopNumber int, answer string) (Snapshot, error) {
	s := t.acquire(userID)
	defer t.release(s)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.active(ctx, s); err != nil {
		return Snapshot{}, err
	}
	p := s.progress
	if stopNumber != p.CurrentStop {
		return Snapshot{}, crawl.ErrNotCurrentStop
	}
	stop, err := s.def.Stop(stopNumber)
	if err != nil {
		return Snapshot{}, err
	}

	now := t.clock()
	challenge := crawl.ChallengeFor(s.def, stop, t.match)
	if err := challenge.Evaluate(crawl.Attempt{Answer: answer, At: now, StartedAt: p.StartedAt}); err != nil {
		return Snapshot{}, err
	}
	if err := p.CompleteStop(stopNumber, answer, now); err != nil {
		return Snapshot{}, err
	}
	return t.save(ctx, s), nil
}

// Advance moves to the next stop. Advancing past the last stop completes
// the crawl, writes history and clears the stored attempt.
func (t *Tracker) Advance(ctx context.Context, userID string) (Snapshot, error) {
	s := t.acquire(userID)
	defer t.release(s)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.active(ctx, s); err != nil {
		return Snapshot{}, err
	}
	if err := s.progress.Advance(t.clock()); err != nil {
		return Snapshot{}, err
	}
	if s.progress.Completed {
		return t.finish(ctx, s), nil
	}
	return t.save(ctx, s), nil
}

// Exit clears the user's in-memory attempt, optionally persisting it first.
func (t *Tracker) Exit(ctx context.Context, userID string, persist bool) error {
	s := t.acquire(userID)
	defer t.release(s)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress == nil {
		return nil
	}
	var err error
	if persist {
		if err = t.gateway.SaveProgress(ctx, *s.progress); err != nil {
			t.logger.Error("persisting progress on exit", "user_id", userID, "error", err)
			err = fmt.Errorf("saving progress: %w", err)
		}
	}
	s.progress = nil
	s.def = crawl.Definition{}
	return err
}

// End abandons the user's active attempt: it is archived as not finished
// and its stored row removed.
func (t *Tracker) End(ctx context.Context, userID string) error {
	s := t.acquire(userID)
	defer t.release(s)
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := t.stored(ctx, s)
	if err != nil {
		return err
	}
	if active == nil {
		return ErrNoActiveCrawl
	}
	t.abandon(ctx, *active)
	s.progress = nil
	s.def = crawl.Definition{}
	return nil
}

// abandon records an unfinished attempt in history and best-effort deletes
// its stored row.
func (t *Tracker) abandon(ctx context.Context, p crawl.Progress) {
	now := t.clock()
	entry := crawl.HistoryEntry{
		ID:               uuid.NewString(),
		UserID:           p.UserID,
		CrawlID:          p.CrawlID,
		IsPublic:         p.IsPublic,
		Completed:        false,
		StopsCompleted:   len(p.CompletedStops),
		CompletedAt:      now,
		TotalTimeMinutes: p.ElapsedMinutes(now),
	}
	if err := t.gateway.AppendHistory(ctx, entry); err != nil {
		t.logger.Error("archiving abandoned crawl", "user_id", p.UserID, "crawl_id", p.CrawlID, "error", err)
	}
	if err := t.gateway.DeleteProgress(ctx, p.UserID); err != nil {
		t.logger.Warn("deleting abandoned progress", "user_id", p.UserID, "error", err)
	}
	t.logger.Info("crawl abandoned", "user_id", p.UserID, "crawl_id", p.CrawlID)
}

// finish writes the completion record and clears the stored attempt. Both
// writes are attempted; a failed delete leaves an orphaned row that the next
// start replaces.
//
// The completion instant is the attempt's last activity, so an attempt
// finalized on a later resume does not count the time the app was closed.
func (t *Tracker) finish(ctx context.Context, s *Session) Snapshot {
	p := *s.progress
	p.Completed = true
	now := p.FinishedAt()
	if now.IsZero() {
		now = t.clock()
	}

	entry := crawl.HistoryEntry{
		ID:               uuid.NewString(),
		UserID:           p.UserID,
		CrawlID:          p.CrawlID,
		IsPublic:         p.IsPublic,
		Completed:        true,
		StopsCompleted:   len(p.CompletedStops),
		CompletedAt:      now,
		TotalTimeMinutes: p.ElapsedMinutes(now),
	}

	synced := true
	if err := t.gateway.AppendHistory(ctx, entry); err != nil {
		synced = false
		t.logger.Error("writing crawl history", "user_id", p.UserID, "crawl_id", p.CrawlID, "error", err)
	}
	if err := t.gateway.DeleteProgress(ctx, p.UserID); err != nil && !errors.Is(err, crawl.ErrNotFound) {
		t.logger.Warn("deleting completed progress", "user_id", p.UserID, "error", err)
	}

	snap := Snapshot{Progress: p.Clone(), Crawl: s.def, Synced: synced, History: &entry}
	s.progress = nil
	s.def = crawl.Definition{}

	t.logger.Info("crawl completed", "user_id", p.UserID, "crawl_id", p.CrawlID, "minutes", entry.TotalTimeMinutes)
	return snap
}

func (t *Tracker) save(ctx context.Context, s *Session) Snapshot {
	if err := t.gateway.SaveProgress(ctx, *s.progress); err != nil {
		t.logger.Error("saving progress", "user_id", s.userID, "crawl_id", s.progress.CrawlID, "error", err)
		return t.snapshot(s, false)
	}
	return t.snapshot(s, true)
}

func (t *Tracker) snapshot(s *Session, synced bool) Snapshot {
	return Snapshot{Progress: s.progress.Clone(), Crawl: s.def, Synced: synced}
}
