// Package extract pulls records from a provider API with a stored credential
// and replaces a warehouse table with them.
package extract

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/connector-manager/internal/secretstore"
	"github.com/openkcm/connector-manager/internal/serviceerr"
	"github.com/openkcm/connector-manager/internal/sink"
)

// Lister fetches every record a credential gives access to.
type Lister interface {
	List(ctx context.Context, bundle secretstore.TokenBundle) (Page, error)
}

// Page is the outcome of a listing: the records and how many requests it
// took to get them.
type Page struct {
	Records  []sink.Record
	Requests int
}

type Status string

const (
	StatusLoaded Status = "loaded"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// Run is the record kept for every extraction.
type Run struct {
	ID         string
	Subject    string
	Provider   string
	Table      string
	Records    int
	Pages      int
	Status     Status
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunLog keeps a history of extraction runs.
type RunLog interface {
	RecordRun(ctx context.Context, run Run) error
}

type Request struct {
	Subject  string
	Provider string
	Table    string
}

type Report struct {
	Subject   string
	Provider  string
	Table     string
	SecretKey string
	Records   int
	Pages     int
	Written   bool
}

type Job struct {
	secrets secretstore.Store
	sink    sink.Sink
	listers map[string]Lister
	runs    RunLog
	now     func() time.Time
}

type Option func(*Job)

func WithLister(provider string, l Lister) Option {
	return func(j *Job) { j.listers[provider] = l }
}

// WithRunLog records every run. Without it runs are only logged.
func WithRunLog(runs RunLog) Option {
	return func(j *Job) { j.runs = runs }
}

func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

func NewJob(secrets secretstore.Store, s sink.Sink, opts ...Option) *Job {
	j := &Job{
		secrets: secrets,
		sink:    s,
		listers: make(map[string]Lister),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}

	return j
}

// Run loads the credential of the subject, lists the provider's records and
// replaces the table with them. Nothing is written when there are no records.
func (j *Job) Run(ctx context.Context, req Request) (report Report, err error) {
	if req.Subject == "" {
		return Report{}, fmt.Errorf("%w: subject is required", serviceerr.ErrInvalidRequest)
	}
	if err := sink.ValidateTable(req.Table); err != nil {
		return Report{}, fmt.Errorf("%w: %w", serviceerr.ErrInvalidRequest, err)
	}

	lister, ok := j.listers[req.Provider]
	if !ok {
		return Report{}, serviceerr.ErrUnknownProvider
	}

	ctx = slogctx.With(ctx, "subject", req.Subject, "provider", req.Provider, "table", req.Table)

	report = Report{
		Subject:   req.Subject,
		Provider:  req.Provider,
		Table:     req.Table,
		SecretKey: secretstore.Key(req.Subject, req.Provider),
	}

	started := j.now()
	defer func() {
		j.record(ctx, started, report, err)
	}()

	bundle, found, err := secretstore.GetBundle(ctx, j.secrets, req.Subject, req.Provider)
	if err != nil {
		return report, err
	}
	if !found {
		return report, serviceerr.ErrCredentialNotFound
	}

	page, err := lister.List(ctx, bundle)
	if err != nil {
		return report, err
	}

	report.Records = len(page.Records)
	report.Pages = page.Requests

	if len(page.Records) == 0 {
		slogctx.Info(ctx, "No records to load")
		return report, nil
	}

	if err := j.sink.Replace(ctx, req.Table, page.Records); err != nil {
		return report, fmt.Errorf("replacing table: %w", err)
	}

	report.Written = true

	return report, nil
}

func (j *Job) record(ctx context.Context, started time.Time, report Report, err error) {
	run := Run{
		Subject:    report.Subject,
		Provider:   report.Provider,
		Table:      report.Table,
		Records:    report.Records,
		Pages:      report.Pages,
		StartedAt:  started,
		FinishedAt: j.now(),
	}

	switch {
	case err != nil:
		run.Status = StatusFailed
		run.Error = err.Error()
		slogctx.Error(ctx, "Extraction failed", "error", err)
	case report.Written:
		run.Status = StatusLoaded
		slogctx.Info(ctx, "Extraction finished", "records", report.Records, "pages", report.Pages)
	default:
		run.Status = StatusEmpty
	}

	if j.runs == nil {
		return
	}

	if rerr := j.runs.RecordRun(ctx, run); rerr != nil {
		slogctx.Warn(ctx, "Failed to record extraction run", "error", rerr)
	}
}
