package funnel

import (
	"errors"
	"fmt"
	"time"

	"github.com/vinodismyname/mcpfunnel/internal/dataset"
)

// RecencyLabel classifies a user relative to the latest signup in the registry.
type RecencyLabel string

const (
	RecencyNew      RecencyLabel = "new"
	RecencyExisting RecencyLabel = "existing"
	// RecencyUnknown holds users whose signup date is missing or unparseable.
	// They are reported separately and never folded into new or existing.
	RecencyUnknown RecencyLabel = "unknown"
)

var (
	ErrNoSignupColumn     = errors.New("funnel: registry has no signup date column")
	ErrNoValidSignupDates = errors.New("funnel: no valid signup date in registry")
	ErrInvalidWindow      = errors.New("funnel: recency window must be >= 0 days")
)

// RecencySplit is the result of classifying every registry user.
type RecencySplit struct {
	Days      int       `json:"days"`
	MaxSignup time.Time `json:"max_signup"`
	Cutoff    time.Time `json:"cutoff"`
	New       []string  `json:"-"`
	Existing  []string  `json:"-"`
	Unknown   []string  `json:"-"`

	labels map[string]RecencyLabel
}

// ClassifyRecency labels users with signup >= max(signup) - days as new and
// the rest with a valid date as existing.
func ClassifyRecency(reg *dataset.Registry, days int) (*RecencySplit, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, days)
	}
	if reg == nil || !reg.HasSignup() {
		return nil, ErrNoSignupColumn
	}

	var maxDate time.Time
	found := false
	reg.Each(func(u dataset.User) {
		if !u.SignupValid {
			return
		}
		if !found || u.Signup.After(maxDate) {
			maxDate = u.Signup
			found = true
		}
	})
	if !found {
		return nil, ErrNoValidSignupDates
	}

	split := &RecencySplit{
		Days:      days,
		MaxSignup: maxDate,
		Cutoff:    maxDate.Add(-time.Duration(days) * 24 * time.Hour),
		labels:    make(map[string]RecencyLabel, reg.Len()),
	}
	reg.Each(func(u dataset.User) {
		switch {
		case !u.SignupValid:
			split.Unknown = append(split.Unknown, u.ID)
			split.labels[u.ID] = RecencyUnknown
		case u.Signup.Before(split.Cutoff):
			split.Existing = append(split.Existing, u.ID)
			split.labels[u.ID] = RecencyExisting
		default:
			split.New = append(split.New, u.ID)
			split.labels[u.ID] = RecencyNew
		}
	})
	return split, nil
}

// Label returns the user's bucket; users absent from the registry report false.
func (s *RecencySplit) Label(id string) (RecencyLabel, bool) {
	l, ok := s.labels[id]
	return l, ok
}
