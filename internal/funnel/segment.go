package funnel

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vinodismyname/mcpfunnel/internal/dataset"
)

// SegmentKey is the closed set of supported segmentation attributes.
type SegmentKey string

const (
	SegmentDevice  SegmentKey = "device"
	SegmentGender  SegmentKey = "gender"
	SegmentRecency SegmentKey = "recency"
)

var (
	ErrUnknownSegment   = errors.New("funnel: unknown segment key")
	ErrAttributeMissing = errors.New("funnel: attribute column absent from registry")
	ErrRecencyRequired  = errors.New("funnel: recency segmentation requires a recency split")
)

// ParseSegmentKey maps user input to a SegmentKey. "sex" and "user_type" are
// accepted as the historical column names for gender and recency.
func ParseSegmentKey(s string) (SegmentKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "device":
		return SegmentDevice, nil
	case "gender", "sex":
		return SegmentGender, nil
	case "recency", "user_type":
		return SegmentRecency, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSegment, s)
}

// StageCounts are raw visit-record counts per stage after filtering, with
// duplicates included.
type StageCounts struct {
	Home         int `json:"home"`
	Search       int `json:"search"`
	Payment      int `json:"payment"`
	Confirmation int `json:"confirmation"`
}

// SegmentResult is the funnel for one segment value.
type SegmentResult struct {
	Funnel            FunnelTable `json:"funnel"`
	OverallConversion float64     `json:"overall_conversion"`
	Counts            StageCounts `json:"counts"`
}

// Segments maps segment values (e.g. "Mobile") to their funnel.
type Segments map[string]SegmentResult

// Keys returns the segment values in lexical order.
func (s Segments) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Segment partitions visits by the registry attribute named by key and runs
// the journey calculator per partition. Users with an empty attribute value,
// and visits by users missing from the registry, fall in no segment.
func Segment(v dataset.Visits, reg *dataset.Registry, key SegmentKey, split *RecencySplit) (Segments, error) {
	label, err := labeler(reg, key, split)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string]string, reg.Len())
	reg.Each(func(u dataset.User) {
		if l := label(u); l != "" {
			byUser[u.ID] = l
		}
	})

	parts := map[string]*dataset.Visits{}
	for _, l := range byUser {
		if _, ok := parts[l]; !ok {
			parts[l] = &dataset.Visits{}
		}
	}
	for stage, ids := range v {
		for _, id := range ids {
			if l, ok := byUser[id]; ok {
				p := parts[l]
				p[stage] = append(p[stage], id)
			}
		}
	}

	out := make(Segments, len(parts))
	for l, p := range parts {
		j := CalculateJourney(*p)
		out[l] = SegmentResult{
			Funnel:            j.Funnel,
			OverallConversion: j.OverallConversion,
			Counts: StageCounts{
				Home:         len(p[Home]),
				Search:       len(p[Search]),
				Payment:      len(p[Payment]),
				Confirmation: len(p[Confirmation]),
			},
		}
	}
	return out, nil
}

func labeler(reg *dataset.Registry, key SegmentKey, split *RecencySplit) (func(dataset.User) string, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: %s", ErrAttributeMissing, key)
	}
	switch key {
	case SegmentDevice:
		if !reg.HasDevice() {
			return nil, fmt.Errorf("%w: %s", ErrAttributeMissing, key)
		}
		return func(u dataset.User) string { return u.Device }, nil
	case SegmentGender:
		if !reg.HasGender() {
			return nil, fmt.Errorf("%w: %s", ErrAttributeMissing, key)
		}
		return func(u dataset.User) string { return u.Gender }, nil
	case SegmentRecency:
		if split == nil {
			return nil, ErrRecencyRequired
		}
		return func(u dataset.User) string {
			l, ok := split.Label(u.ID)
			if !ok || l == RecencyUnknown {
				return ""
			}
			return string(l)
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSegment, string(key))
}
