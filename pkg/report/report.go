// Package report implements the reporting sinks the pipeline driver and the
// publish workflow notify about start, failure and success.
package report

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

var (
	_ core.Reporter = Nop{}
	_ core.Reporter = (*Log)(nil)
	_ core.Reporter = Multi(nil)
	_ core.Reporter = (*GitLab)(nil)
)

// Nop discards every report.
type Nop struct{}

func (Nop) ReportStart(context.Context, core.ReportContext) (core.Ticket, error) {
	return core.Ticket{}, nil
}

func (Nop) ReportFailure(context.Context, core.Ticket, string) error { return nil }

func (Nop) ReportSuccess(context.Context, core.Ticket, string) error { return nil }

// Log writes reports to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a sink logging to l, or slog.Default when l is nil.
func NewLog(l *slog.Logger) *Log {
	if l == nil {
		l = slog.Default()
	}
	return &Log{logger: l}
}

func (s *Log) ReportStart(_ context.Context, rc core.ReportContext) (core.Ticket, error) {
	s.logger.Info("report: started", "title", rc.Title, "collection_id", rc.CollectionID, "document_id", rc.DocumentID)
	return core.Ticket{ID: rc.Title}, nil
}

func (s *Log) ReportFailure(_ context.Context, t core.Ticket, reason string) error {
	s.logger.Error("report: failed", "ticket", t.ID, "reason", reason)
	return nil
}

func (s *Log) ReportSuccess(_ context.Context, t core.Ticket, message string) error {
	s.logger.Info("report: succeeded", "ticket", t.ID, "message", message)
	return nil
}

// Multi fans reports out to several sinks. Every sink receives the same
// ticket: the first one with a URL, else the first one returned. It is meant
// for one issue tracker plus side channels such as Log.
type Multi []core.Reporter

func (m Multi) ReportStart(ctx context.Context, rc core.ReportContext) (core.Ticket, error) {
	var (
		ticket core.Ticket
		errs   []error
	)
	for _, r := range m {
		t, err := r.ReportStart(ctx, rc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch {
		case t.URL != "" && ticket.URL == "":
			ticket = t
		case ticket == core.Ticket{}:
			ticket = t
		}
	}
	return ticket, errors.Join(errs...)
}

func (m Multi) ReportFailure(ctx context.Context, t core.Ticket, reason string) error {
	var errs []error
	for _, r := range m {
		if err := r.ReportFailure(ctx, t, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) ReportSuccess(ctx context.Context, t core.Ticket, message string) error {
	var errs []error
	for _, r := range m {
		if err := r.ReportSuccess(ctx, t, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
