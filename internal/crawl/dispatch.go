package crawl

import (
	"fmt"
	"strings"
	"time"
)

// LockedError is returned when a time-locked stop is attempted too early.
type LockedError struct {
	StopNumber int
	Until      time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("stop %d is locked until %s", e.StopNumber, e.Until.UTC().Format(time.RFC3339))
}

// AnswerMatcher decides whether a submitted riddle answer is acceptable.
type AnswerMatcher func(given, expected string) bool

// MatchAnswer compares answers case-insensitively with whitespace collapsed.
func MatchAnswer(given, expected string) bool {
	norm := func(s string) string { return strings.Join(strings.Fields(s), " ") }
	return strings.EqualFold(norm(given), norm(expected))
}

// Attempt is a user's try at the current stop.
type Attempt struct {
	Answer    string
	At        time.Time
	StartedAt time.Time
}

// Challenge decides when a stop counts as completed. Evaluate returns nil
// when the stop may be recorded; it never changes progress itself.
type Challenge interface {
	Type() StopType
	Evaluate(a Attempt) error
}

// ChallengeFor picks the completion rule for a stop. A nil matcher uses
// MatchAnswer.
func ChallengeFor(def Definition, stop Stop, match AnswerMatcher) Challenge {
	if match == nil {
		match = MatchAnswer
	}
	switch stop.Type {
	case StopRiddle:
		expected := ""
		if stop.Riddle != nil {
			expected = stop.Riddle.Answer
		}
		return riddleChallenge{expected: expected, match: match}
	case StopLocation:
		return assertChallenge{typ: StopLocation}
	case StopPhoto:
		return assertChallenge{typ: StopPhoto}
	default:
		return buttonChallenge{def: def, number: stop.Number}
	}
}

type riddleChallenge struct {
	expected string
	match    AnswerMatcher
}

func (riddleChallenge) Type() StopType { return StopRiddle }

func (c riddleChallenge) Evaluate(a Attempt) error {
	if strings.TrimSpace(a.Answer) == "" || !c.match(a.Answer, c.expected) {
		return ErrWrongAnswer
	}
	return nil
}

// assertChallenge covers location and photo stops: the user's assertion is
// taken at face value.
type assertChallenge struct{ typ StopType }

func (c assertChallenge) Type() StopType { return c.typ }

func (assertChallenge) Evaluate(Attempt) error { return nil }

type buttonChallenge struct {
	def    Definition
	number int
}

func (buttonChallenge) Type() StopType { return StopButton }

func (c buttonChallenge) Evaluate(a Attempt) error {
	until, locked := c.def.UnlockAt(c.number, a.StartedAt)
	if locked && a.At.Before(until) {
		return &LockedError{StopNumber: c.number, Until: until}
	}
	return nil
}
