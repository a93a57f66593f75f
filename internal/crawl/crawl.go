// Package crawl defines the core domain types, the progress state machine
// and the stop-type dispatcher. It has zero external dependencies.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNoStops          = errors.New("crawl has no stops")
	ErrNotCurrentStop   = errors.New("stop is not the current stop")
	ErrStopPending      = errors.New("current stop is not completed yet")
	ErrAlreadyCompleted = errors.New("crawl already completed")
	ErrWrongAnswer      = errors.New("wrong answer")
)

// Catalog is a read-only source of crawl definitions.
type Catalog interface {
	Crawls(ctx context.Context) ([]Definition, error)
	Crawl(ctx context.Context, id string) (Definition, error)
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityLibrary Visibility = "library"
)

type Definition struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	AssetFolder string     `json:"assetFolder"`
	Duration    string     `json:"duration"`
	Distance    string     `json:"distance"`
	Difficulty  string     `json:"difficulty"`
	Visibility  Visibility `json:"visibility"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	Stops       []Stop     `json:"stops"`
}

func (d Definition) IsPublic() bool { return d.Visibility == VisibilityPublic }

func (d Definition) TotalStops() int { return len(d.Stops) }

// Stop returns the stop with the given 1-based number.
func (d Definition) Stop(number int) (Stop, error) {
	if number < 1 || number > len(d.Stops) {
		return Stop{}, fmt.Errorf("stop %d: %w", number, ErrNotFound)
	}
	return d.Stops[number-1], nil
}

// UnlockAt reports when a time-locked button stop becomes available. The
// offsets of every button stop up to and including number are summed and
// added to the crawl's scheduled start, or to startedAt for library crawls.
func (d Definition) UnlockAt(number int, startedAt time.Time) (time.Time, bool) {
	base := startedAt
	if d.StartTime != nil {
		base = *d.StartTime
	}
	total := 0
	locked := false
	for _, s := range d.Stops {
		if s.Number > number {
			break
		}
		if s.Button != nil && s.Button.RevealAfterMinutes > 0 {
			total += s.Button.RevealAfterMinutes
			if s.Number == number {
				locked = true
			}
		}
	}
	if !locked {
		return time.Time{}, false
	}
	return base.Add(time.Duration(total) * time.Minute), true
}

type StopType string

const (
	StopRiddle   StopType = "riddle"
	StopLocation StopType = "location"
	StopPhoto    StopType = "photo"
	StopButton   StopType = "button"
)

// ParseStopType maps a declared type to a known variant; anything missing or
// unrecognized is a button.
func ParseStopType(s string) StopType {
	switch t := StopType(strings.ToLower(strings.TrimSpace(s))); t {
	case StopRiddle, StopLocation, StopPhoto:
		return t
	default:
		return StopButton
	}
}

// Stop is one unit of a crawl. Exactly one of the variant pointers is set,
// matching Type.
type Stop struct {
	Number    int           `json:"stopNumber"`
	Name      string        `json:"name"`
	Type      StopType      `json:"stopType"`
	RewardURL string        `json:"rewardUrl,omitempty"`
	Riddle    *RiddleStop   `json:"riddle,omitempty"`
	Location  *LocationStop `json:"location,omitempty"`
	Photo     *PhotoStop    `json:"photo,omitempty"`
	Button    *ButtonStop   `json:"button,omitempty"`
}

type RiddleStop struct {
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

type LocationStop struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

type PhotoStop struct {
	Instructions string `json:"instructions"`
	Target       string `json:"target"`
}

type ButtonStop struct {
	Label              string `json:"label"`
	RevealAfterMinutes int    `json:"revealAfterMinutes,omitempty"`
}

// Component keys understood in a stop's free-form component map.
const (
	KeyPrompt             = "prompt"
	KeyAnswer             = "answer"
	KeyName               = "name"
	KeyLink               = "link"
	KeyInstructions       = "instructions"
	KeyTarget             = "target"
	KeyLabel              = "label"
	KeyRevealAfterMinutes = "reveal_after_minutes"
)

// NewStop builds a typed stop from its declared type and component map.
func NewStop(number int, name, stopType string, components map[string]string, rewardURL string) (Stop, error) {
	s := Stop{
		Number:    number,
		Name:      name,
		Type:      ParseStopType(stopType),
		RewardURL: rewardURL,
	}
	get := func(k string) string { return strings.TrimSpace(components[k]) }

	switch s.Type {
	case StopRiddle:
		r := &RiddleStop{Prompt: get(KeyPrompt), Answer: get(KeyAnswer)}
		if r.Prompt == "" || r.Answer == "" {
			return Stop{}, fmt.Errorf("stop %d: riddle needs %q and %q", number, KeyPrompt, KeyAnswer)
		}
		s.Riddle = r
	case StopLocation:
		s.Location = &LocationStop{Name: get(KeyName), Link: get(KeyLink)}
		if s.Location.Name == "" {
			s.Location.Name = name
		}
	case StopPhoto:
		s.Photo = &PhotoStop{Instructions: get(KeyInstructions), Target: get(KeyTarget)}
		if s.Photo.Instructions == "" {
			return Stop{}, fmt.Errorf("stop %d: photo needs %q", number, KeyInstructions)
		}
	default:
		b := &ButtonStop{Label: get(KeyLabel)}
		if raw := get(KeyRevealAfterMinutes); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return Stop{}, fmt.Errorf("stop %d: invalid %s %q", number, KeyRevealAfterMinutes, raw)
			}
			b.RevealAfterMinutes = n
		}
		if b.Label == "" {
			b.Label = "Done"
		}
		s.Button = b
	}
	return s, nil
}

// Components flattens the typed variant back into a component map.
func (s Stop) Components() map[string]string {
	m := map[string]string{}
	switch {
	case s.Riddle != nil:
		m[KeyPrompt] = s.Riddle.Prompt
		m[KeyAnswer] = s.Riddle.Answer
	case s.Location != nil:
		m[KeyName] = s.Location.Name
		if s.Location.Link != "" {
			m[KeyLink] = s.Location.Link
		}
	case s.Photo != nil:
		m[KeyInstructions] = s.Photo.Instructions
		if s.Photo.Target != "" {
			m[KeyTarget] = s.Photo.Target
		}
	case s.Button != nil:
		m[KeyLabel] = s.Button.Label
		if s.Button.RevealAfterMinutes > 0 {
			m[KeyRevealAfterMinutes] = strconv.Itoa(s.Button.RevealAfterMinutes)
		}
	}
	return m
}

// CheckNumbering verifies stop numbers are unique and dense from 1..N and
// leaves the stops sorted by number.
func CheckNumbering(stops []Stop) error {
	sort.SliceStable(stops, func(i, j int) bool { return stops[i].Number < stops[j].Number })
	for i, s := range stops {
		if s.Number != i+1 {
			return fmt.Errorf("stop numbers must be dense from 1: expected %d, got %d", i+1, s.Number)
		}
	}
	return nil
}

type UserProfile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HistoryEntry is an immutable record of a finished or abandoned attempt.
type HistoryEntry struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	CrawlID          string    `json:"crawlId"`
	IsPublic         bool      `json:"isPublic"`
	Completed        bool      `json:"completed"`
	StopsCompleted   int       `json:"stopsCompleted"`
	CompletedAt      time.Time `json:"completedAt"`
	TotalTimeMinutes int       `json:"totalTimeMinutes"`
	Score            *int      `json:"score,omitempty"`
}

type Stats struct {
	CrawlsCompleted  int        `json:"crawlsCompleted"`
	CrawlsAbandoned  int        `json:"crawlsAbandoned"`
	PublicCompleted  int        `json:"publicCompleted"`
	LibraryCompleted int        `json:"libraryCompleted"`
	TotalMinutes     int        `json:"totalMinutes"`
	AverageMinutes   int        `json:"averageMinutes"`
	LastCompletedAt  *time.Time `json:"lastCompletedAt,omitempty"`
}
