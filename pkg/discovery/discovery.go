// Package discovery lists the documents of a collection that still need
// processing and waits for uploaded documents to show up by title.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// Source is what discovery needs from the remote service.
type Source interface {
	core.DocumentLister
	core.CollectionLister
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithClock replaces the wall clock, for tests.
func WithClock(c core.Clock) Option {
	return func(d *Discoverer) { d.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Discoverer) { d.logger = l }
}

// Discoverer reads collection contents.
type Discoverer struct {
	source Source
	clock  core.Clock
	logger *slog.Logger
}

// New creates a Discoverer.
func New(source Source, opts ...Option) *Discoverer {
	d := &Discoverer{source: source, clock: core.RealClock(), logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ListCollections returns every collection visible to the session.
func (d *Discoverer) ListCollections(ctx context.Context) ([]core.Collection, error) {
	cols, err := d.source.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return cols, nil
}

// ListEligibleDocuments returns the documents of collectionID that have
// new pages, in remote order.
func (d *Discoverer) ListEligibleDocuments(ctx context.Context, collectionID string) ([]core.DocumentRef, error) {
	docs, err := d.source.ListDocuments(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list documents of collection %s: %w", collectionID, err)
	}
	eligible := FilterEligible(docs)
	d.logger.Debug("eligible documents", "collection_id", collectionID, "total", len(docs), "eligible", len(eligible))
	return eligible, nil
}

// FilterEligible keeps documents whose new-page marker is positive.
func FilterEligible(docs []core.DocumentRef) []core.DocumentRef {
	var out []core.DocumentRef
	for _, doc := range docs {
		if doc.Eligible() {
			out = append(out, doc)
		}
	}
	return out
}

// TitleMatch pairs an expected title with the document that carries it.
type TitleMatch struct {
	Title      string
	DocumentID string
}

// TitleMap is the result of AwaitTitles, ordered like the request.
type TitleMap struct {
	Entries []TitleMatch
}

// Lookup returns the document id for title.
func (m TitleMap) Lookup(title string) (string, bool) {
	for _, e := range m.Entries {
		if e.Title == title {
			return e.DocumentID, true
		}
	}
	return "", false
}

// Documents returns the matched documents as refs of collectionID.
func (m TitleMap) Documents(collectionID string) []core.DocumentRef {
	docs := make([]core.DocumentRef, 0, len(m.Entries))
	for _, e := range m.Entries {
		docs = append(docs, core.DocumentRef{ID: e.DocumentID, CollectionID: collectionID, Title: e.Title})
	}
	return docs
}

// AwaitTitles polls the collection until every expected title is present.
// On expiry it returns a *core.TimeoutError naming the titles never seen.
// When the same title appears twice remotely the first listed document wins.
func (d *Discoverer) AwaitTitles(ctx context.Context, collectionID string, expected []string, timeout, pollInterval time.Duration) (TitleMap, error) {
	if timeout <= 0 || pollInterval <= 0 {
		return TitleMap{}, core.ErrTimeoutRequired
	}
	wanted := dedupe(expected)
	log := d.logger.With("collection_id", collectionID)
	deadline := d.clock.Now().Add(timeout)

	observed := make(map[string]string)
	for poll := 1; ; poll++ {
		if ctx.Err() != nil {
			return TitleMap{}, core.ErrCancelled
		}
		docs, err := d.source.ListDocuments(ctx, collectionID)
		switch {
		case err != nil && ctx.Err() != nil:
			return TitleMap{}, core.ErrCancelled
		case err != nil:
			log.Warn("listing documents failed, retrying", "poll", poll, "error", err)
		default:
			observed = indexTitles(docs)
			if missing := difference(wanted, observed); len(missing) == 0 {
				log.Info("all uploaded documents visible", "count", len(wanted), "polls", poll)
				return buildMap(wanted, observed), nil
			}
		}

		now := d.clock.Now()
		if !now.Before(deadline) {
			missing := difference(wanted, observed)
			log.Error("uploaded documents did not appear", "missing", missing)
			return TitleMap{}, &core.TimeoutError{What: "document titles", After: timeout, Missing: missing}
		}
		wait := pollInterval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		if err := d.clock.Sleep(ctx, wait); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return TitleMap{}, core.ErrCancelled
			}
			return TitleMap{}, err
		}
	}
}

func dedupe(titles []string) []string {
	seen := make(map[string]bool, len(titles))
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func indexTitles(docs []core.DocumentRef) map[string]string {
	idx := make(map[string]string, len(docs))
	for _, doc := range docs {
		if _, ok := idx[doc.Title]; !ok {
			idx[doc.Title] = doc.ID
		}
	}
	return idx
}

func difference(wanted []string, observed map[string]string) []string {
	var missing []string
	for _, t := range wanted {
		if _, ok := observed[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

func buildMap(wanted []string, observed map[string]string) TitleMap {
	m := TitleMap{Entries: make([]TitleMatch, 0, len(wanted))}
	for _, t := range wanted {
		m.Entries = append(m.Entries, TitleMatch{Title: t, DocumentID: observed[t]})
	}
	return m
}
