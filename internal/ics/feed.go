package ics

import (
	"context"
	"errors"
	"time"

	"tutorcal/internal/fetch"
	appLog "tutorcal/internal/log"
	"tutorcal/internal/model"
)

// Feeds fetches, parses and expands a set of ICS subscriptions.
type Feeds struct {
	fetcher *fetch.Fetcher
	sources []Source
	loc     *time.Location
}

// NewFeeds returns a Feeds reading sources through fetcher. Occurrences are
// converted to loc.
func NewFeeds(fetcher *fetch.Fetcher, sources []Source, loc *time.Location) *Feeds {
	if loc == nil {
		loc = time.Local
	}
	return &Feeds{fetcher: fetcher, sources: sources, loc: loc}
}

// Occurrences returns every occurrence intersecting [from, to). A feed that
// cannot be fetched or parsed is logged and left out; an error is returned
// only when every configured feed failed.
func (f *Feeds) Occurrences(ctx context.Context, from, to time.Time) ([]model.Occurrence, error) {
	if len(f.sources) == 0 {
		return nil, nil
	}

	byID := make(map[string]Source, len(f.sources))
	srcs := make([]fetch.Source, 0, len(f.sources))
	for _, s := range f.sources {
		byID[s.ID] = s
		srcs = append(srcs, fetch.Source{ID: s.ID, URL: s.URL})
	}

	results, errs := f.fetcher.FetchAll(ctx, srcs)
	if len(results) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	parsed := make([]VEvent, 0)
	for _, res := range results {
		events, err := Parse(byID[res.Source.ID], res.Body)
		if err != nil {
			appLog.Error("ics parse failed", err, "id", res.Source.ID, "url", fetch.RedactURL(res.Source.URL))
			continue
		}
		parsed = append(parsed, events...)
	}

	expanded, err := Expand(parsed, ExpandConfig{
		DisplayLocation: f.loc,
		RangeStart:      from,
		RangeEnd:        to,
	})
	if err != nil {
		return nil, err
	}
	return expanded.Occurrences, nil
}
