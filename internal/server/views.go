package server

import (
	"time"

	"github.com/citycrawl/crawl/internal/crawl"
	"github.com/citycrawl/crawl/internal/progress"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ConflictResponse is returned when starting a crawl while another one is
// active. Repeat the request with confirm set to abandon the active crawl.
type ConflictResponse struct {
	Error           string `json:"error"`
	ActiveCrawlID   string `json:"activeCrawlId"`
	ActiveCrawlName string `json:"activeCrawlName"`
}

// LockedResponse is returned when completing a time-locked stop too early.
type LockedResponse struct {
	Error    string    `json:"error"`
	UnlockAt time.Time `json:"unlockAt"`
}

type CrawlSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Duration    string     `json:"duration"`
	Distance    string     `json:"distance"`
	Difficulty  string     `json:"difficulty"`
	Visibility  string     `json:"visibility"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	TotalStops  int        `json:"totalStops"`
	SignedUp    bool       `json:"signedUp"`
}

type CrawlDetail struct {
	CrawlSummary
	Stops []StopView `json:"stops"`
}

// StopView is a stop as shown to a participant. Riddle answers are never
// included, and the reward link only once the stop is done.
type StopView struct {
	StopNumber         int        `json:"stopNumber"`
	Name               string     `json:"name"`
	StopType           string     `json:"stopType"`
	Prompt             string     `json:"prompt,omitempty"`
	LocationName       string     `json:"locationName,omitempty"`
	Link               string     `json:"link,omitempty"`
	Instructions       string     `json:"instructions,omitempty"`
	Target             string     `json:"target,omitempty"`
	Label              string     `json:"label,omitempty"`
	RevealAfterMinutes int        `json:"revealAfterMinutes,omitempty"`
	UnlockAt           *time.Time `json:"unlockAt,omitempty"`
	RewardURL          string     `json:"rewardUrl,omitempty"`
}

type ProgressResponse struct {
	Phase          string                 `json:"phase"`
	CrawlID        string                 `json:"crawlId,omitempty"`
	CrawlName      string                 `json:"crawlName,omitempty"`
	IsPublic       bool                   `json:"isPublic"`
	CurrentStop    int                    `json:"currentStop"`
	TotalStops     int                    `json:"totalStops"`
	CompletedStops []crawl.StopCompletion `json:"completedStops"`
	StartedAt      *time.Time             `json:"startedAt,omitempty"`
	LastUpdated    *time.Time             `json:"lastUpdated,omitempty"`
	ElapsedMinutes int                    `json:"elapsedMinutes"`
	Completed      bool                   `json:"completed"`
	Stop           *StopView              `json:"stop,omitempty"`
	Synced         bool                   `json:"synced"`
	History        *crawl.HistoryEntry    `json:"history,omitempty"`
}

func crawlSummary(def crawl.Definition, signedUp bool) CrawlSummary {
	return CrawlSummary{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Duration:    def.Duration,
		Distance:    def.Distance,
		Difficulty:  def.Difficulty,
		Visibility:  string(def.Visibility),
		StartTime:   def.StartTime,
		TotalStops:  def.TotalStops(),
		SignedUp:    signedUp,
	}
}

func crawlDetail(def crawl.Definition, signedUp bool) CrawlDetail {
	d := CrawlDetail{CrawlSummary: crawlSummary(def, signedUp), Stops: make([]StopView, 0, len(def.Stops))}
	for _, s := range def.Stops {
		d.Stops = append(d.Stops, stopView(def, s, time.Time{}, false))
	}
	return d
}

// stopView renders stop. startedAt anchors time locks of library crawls; a
// zero value leaves them unresolved.
func stopView(def crawl.Definition, s crawl.Stop, startedAt time.Time, done bool) StopView {
	v := StopView{StopNumber: s.Number, Name: s.Name, StopType: string(s.Type)}
	switch {
	case s.Riddle != nil:
		v.Prompt = s.Riddle.Prompt
	case s.Location != nil:
		v.LocationName = s.Location.Name
		v.Link = s.Location.Link
	case s.Photo != nil:
		v.Instructions = s.Photo.Instructions
		v.Target = s.Photo.Target
	case s.Button != nil:
		v.Label = s.Button.Label
		v.RevealAfterMinutes = s.Button.RevealAfterMinutes
		if def.StartTime != nil || !startedAt.IsZero() {
			if at, locked := def.UnlockAt(s.Number, startedAt); locked {
				v.UnlockAt = &at
			}
		}
	}
	if done {
		v.RewardURL = s.RewardURL
	}
	return v
}

func progressResponse(snap progress.Snapshot, now time.Time) ProgressResponse {
	p := snap.Progress
	resp := ProgressResponse{
		Phase:          string(p.Phase()),
		CrawlID:        p.CrawlID,
		CrawlName:      snap.Crawl.Name,
		IsPublic:       p.IsPublic,
		CurrentStop:    p.CurrentStop,
		TotalStops:     p.TotalStops,
		CompletedStops: p.Completions(),
		Completed:      p.Completed,
		Synced:         snap.Synced,
		History:        snap.History,
	}
	if p.CrawlID == "" {
		return resp
	}
	startedAt, lastUpdated := p.StartedAt, p.LastUpdated
	resp.StartedAt = &startedAt
	resp.LastUpdated = &lastUpdated
	if snap.History != nil {
		resp.ElapsedMinutes = snap.History.TotalTimeMinutes
	} else {
		resp.ElapsedMinutes = p.ElapsedMinutes(now)
	}
	if stop, err := snap.Crawl.Stop(p.CurrentStop); err == nil {
		_, done := p.CompletedStops[stop.Number]
		v := stopView(snap.Crawl, stop, p.StartedAt, done)
		resp.Stop = &v
	}
	return resp
}
