// Package dataset loads and normalizes the five funnel input tables: one visit
// log per stage plus the user registry.
package dataset

import (
	"strings"
	"time"
)

// Table identifies one of the five input tables.
type Table string

const (
	TableHome         Table = "home"
	TableSearch       Table = "search"
	TablePayment      Table = "payment"
	TableConfirmation Table = "confirmation"
	TableUsers        Table = "users"
)

// VisitTables lists the stage visit tables in funnel order.
var VisitTables = [4]Table{TableHome, TableSearch, TablePayment, TableConfirmation}

// Visits holds the user identifiers of every visit record per stage, in funnel
// order. Duplicates are kept; set semantics are applied by the engine.
type Visits [4][]string

// User is one normalized registry row.
type User struct {
	ID          string
	Device      string
	Gender      string
	Signup      time.Time
	SignupValid bool
}

// Registry is the immutable, typed user registry. Dates are parsed once at
// load time.
type Registry struct {
	users      []User
	byID       map[string]int
	hasDevice  bool
	hasGender  bool
	hasSignup  bool
	duplicates int
}

// Attributes records which optional registry columns were present in the source.
type Attributes struct {
	Device bool
	Gender bool
	Signup bool
}

// NewRegistry builds a registry from users. Later rows with an already seen
// ID are dropped and counted as duplicates; rows with an empty ID are ignored.
func NewRegistry(users []User, attrs Attributes) *Registry {
	r := &Registry{
		users:     make([]User, 0, len(users)),
		byID:      make(map[string]int, len(users)),
		hasDevice: attrs.Device,
		hasGender: attrs.Gender,
		hasSignup: attrs.Signup,
	}
	for _, u := range users {
		u.ID = strings.TrimSpace(u.ID)
		if u.ID == "" {
			continue
		}
		if _, seen := r.byID[u.ID]; seen {
			r.duplicates++
			continue
		}
		r.byID[u.ID] = len(r.users)
		r.users = append(r.users, u)
	}
	return r
}

// Len returns the number of unique users.
func (r *Registry) Len() int { return len(r.users) }

// Each calls fn for every user in source order.
func (r *Registry) Each(fn func(User)) {
	for _, u := range r.users {
		fn(u)
	}
}

// Lookup returns the user with the given ID.
func (r *Registry) Lookup(id string) (User, bool) {
	i, ok := r.byID[id]
	if !ok {
		return User{}, false
	}
	return r.users[i], true
}

// HasDevice reports whether the source carried a device column.
func (r *Registry) HasDevice() bool { return r.hasDevice }

// HasGender reports whether the source carried a gender column.
func (r *Registry) HasGender() bool { return r.hasGender }

// HasSignup reports whether the source carried a signup-date column.
func (r *Registry) HasSignup() bool { return r.hasSignup }

// Duplicates returns how many rows were dropped for repeating a user ID.
func (r *Registry) Duplicates() int { return r.duplicates }

// Snapshot is one fixed, fully loaded set of inputs for an analysis run.
type Snapshot struct {
	Source   string
	LoadedAt time.Time
	Visits   Visits
	Users    *Registry
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"1/2/06",
}

// ParseDate parses a signup date in any of the accepted layouts. Blank or
// unrecognized values report false.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
