package crawl

import (
	"math"
	"sort"
	"time"
)

type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhaseCompleted  Phase = "completed"
)

// StopCompletion records that a stop's completion condition was met.
type StopCompletion struct {
	StopNumber  int       `json:"stopNumber"`
	UserAnswer  string    `json:"userAnswer,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// Progress is one user's traversal through a crawl. The zero value is a
// not-started attempt.
type Progress struct {
	UserID         string                 `json:"userId"`
	CrawlID        string                 `json:"crawlId"`
	IsPublic       bool                   `json:"isPublic"`
	CurrentStop    int                    `json:"currentStop"`
	TotalStops     int                    `json:"totalStops"`
	CompletedStops map[int]StopCompletion `json:"completedStops"`
	StartedAt      time.Time              `json:"startedAt"`
	LastUpdated    time.Time              `json:"lastUpdated"`
	Completed      bool                   `json:"completed"`
}

// NewProgress starts an attempt at the first stop.
func NewProgress(userID string, def Definition, now time.Time) (Progress, error) {
	if len(def.Stops) == 0 {
		return Progress{}, ErrNoStops
	}
	return Progress{
		UserID:         userID,
		CrawlID:        def.ID,
		IsPublic:       def.IsPublic(),
		CurrentStop:    1,
		TotalStops:     len(def.Stops),
		CompletedStops: map[int]StopCompletion{},
		StartedAt:      now,
		LastUpdated:    now,
	}, nil
}

// Resume normalizes a persisted attempt against the crawl's stop count. A
// missing pointer is rebuilt as the next unfinished stop, clamped to the
// last stop.
func Resume(saved Progress, totalStops int) Progress {
	p := saved
	p.TotalStops = totalStops
	if p.CompletedStops == nil {
		p.CompletedStops = map[int]StopCompletion{}
	}
	if p.CurrentStop < 1 {
		p.CurrentStop = len(p.CompletedStops) + 1
	}
	if p.CurrentStop > totalStops {
		p.CurrentStop = totalStops
	}
	if p.CurrentStop < 1 {
		p.CurrentStop = 1
	}
	return p
}

func (p Progress) Phase() Phase {
	switch {
	case p.CrawlID == "":
		return PhaseNotStarted
	case p.Completed:
		return PhaseCompleted
	default:
		return PhaseInProgress
	}
}

// StopSatisfied reports whether the current stop has been completed but not
// yet advanced past.
func (p Progress) StopSatisfied() bool {
	_, ok := p.CompletedStops[p.CurrentStop]
	return ok
}

// Finished reports whether the attempt is over, either flagged or with every
// stop recorded.
func (p Progress) Finished() bool {
	if p.Completed {
		return true
	}
	if p.TotalStops == 0 {
		return false
	}
	for n := 1; n <= p.TotalStops; n++ {
		if _, ok := p.CompletedStops[n]; !ok {
			return false
		}
	}
	return true
}

// CompleteStop records the current stop as done. Re-completing replaces the
// earlier record.
func (p *Progress) CompleteStop(number int, answer string, now time.Time) error {
	if p.Completed {
		return ErrAlreadyCompleted
	}
	if number != p.CurrentStop {
		return ErrNotCurrentStop
	}
	if p.CompletedStops == nil {
		p.CompletedStops = map[int]StopCompletion{}
	}
	p.CompletedStops[number] = StopCompletion{
		StopNumber:  number,
		UserAnswer:  answer,
		CompletedAt: now,
	}
	p.LastUpdated = now
	return nil
}

// Advance moves past a satisfied stop. Advancing past the last stop marks the
// attempt completed and keeps the pointer on the last stop.
func (p *Progress) Advance(now time.Time) error {
	if p.Completed {
		return ErrAlreadyCompleted
	}
	if !p.StopSatisfied() {
		return ErrStopPending
	}
	p.CurrentStop++
	if p.CurrentStop > p.TotalStops {
		p.Completed = true
		p.CurrentStop = p.TotalStops
	}
	p.LastUpdated = now
	return nil
}

// ElapsedMinutes is the attempt's duration at the given instant, rounded to
// whole minutes.
func (p Progress) ElapsedMinutes(at time.Time) int {
	return int(math.Round(at.Sub(p.StartedAt).Minutes()))
}

// FinishedAt is the attempt's last recorded activity: the later of
// LastUpdated and the newest stop completion.
func (p Progress) FinishedAt() time.Time {
	at := p.LastUpdated
	for _, c := range p.CompletedStops {
		if c.CompletedAt.After(at) {
			at = c.CompletedAt
		}
	}
	return at
}

// Clone returns a copy that shares no state with p.
func (p Progress) Clone() Progress {
	c := p
	c.CompletedStops = make(map[int]StopCompletion, len(p.CompletedStops))
	for k, v := range p.CompletedStops {
		c.CompletedStops[k] = v
	}
	return c
}

// Completions returns the recorded completions ordered by stop number.
func (p Progress) Completions() []StopCompletion {
	out := make([]StopCompletion, 0, len(p.CompletedStops))
	for _, c := range p.CompletedStops {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StopNumber < out[j].StopNumber })
	return out
}
