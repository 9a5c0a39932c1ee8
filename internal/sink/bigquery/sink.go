// Package sinkbigquery loads records into BigQuery with a load job that
// truncates the destination table and autodetects its schema.
package sinkbigquery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/connector-manager/internal/gcpclient"
	"github.com/openkcm/connector-manager/internal/sink"
)

const (
	SourceFormat      = "NEWLINE_DELIMITED_JSON"
	WriteTruncate     = "WRITE_TRUNCATE"
	CreateIfNeeded    = "CREATE_IF_NEEDED"
	jobStateDone      = "DONE"
	defaultPollPeriod = time.Second
)

var ErrLoadJob = errors.New("load job failed")

type Sink struct {
	svc       *bigquery.Service
	projectID string
	dataset   string
	location  string
	poll      time.Duration
}

var _ = sink.Sink(&Sink{})

type Option func(*options)

type options struct {
	endpoint   string
	httpClient *http.Client
	location   string
	poll       time.Duration
}

func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLocation sets the location of a dataset created by the sink.
func WithLocation(location string) Option {
	return func(o *options) { o.location = location }
}

// WithPollPeriod sets how often a running load job is checked.
func WithPollPeriod(d time.Duration) Option {
	return func(o *options) { o.poll = d }
}

func NewSink(ctx context.Context, projectID, dataset string, opts ...Option) (*Sink, error) {
	if projectID == "" {
		return nil, errors.New("project id is required")
	}
	if err := sink.ValidateTable(dataset); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}

	o := options{poll: defaultPollPeriod}
	for _, opt := range opts {
		opt(&o)
	}

	svc, err := bigquery.NewService(ctx, gcpclient.Options(o.endpoint, o.httpClient)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	return &Sink{
		svc:       svc,
		projectID: projectID,
		dataset:   dataset,
		location:  o.location,
		poll:      o.poll,
	}, nil
}

// Replace makes sure the dataset exists and runs a load job that replaces
// the table with records, waiting for the job to finish.
func (s *Sink) Replace(ctx context.Context, table string, records []sink.Record) error {
	if err := sink.ValidateTable(table); err != nil {
		return err
	}

	ctx = slogctx.With(ctx, "dataset", s.dataset, "table", table)

	if err := s.ensureDataset(ctx); err != nil {
		return err
	}

	var data bytes.Buffer
	if err := sink.WriteNDJSON(&data, records); err != nil {
		return err
	}

	job := &bigquery.Job{
		JobReference: &bigquery.JobReference{
			ProjectId: s.projectID,
			JobId:     "connector_load_" + uuid.NewString(),
			Location:  s.location,
		},
		Configuration: &bigquery.JobConfiguration{
			Load: &bigquery.JobConfigurationLoad{
				DestinationTable: &bigquery.TableReference{
					ProjectId: s.projectID,
					DatasetId: s.dataset,
					TableId:   table,
				},
				SourceFormat:      SourceFormat,
				Autodetect:        true,
				WriteDisposition:  WriteTruncate,
				CreateDisposition: CreateIfNeeded,
			},
		},
	}

	inserted, err := s.svc.Jobs.Insert(s.projectID, job).
		Media(&data, googleapi.ContentType("application/octet-stream")).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("inserting load job: %w", err)
	}

	slogctx.Info(ctx, "Load job started", "job_id", inserted.JobReference.JobId, "records", len(records))

	done, err := s.wait(ctx, inserted)
	if err != nil {
		return err
	}

	if done.Status.ErrorResult != nil {
		return fmt.Errorf("%w: %s: %s", ErrLoadJob, done.Status.ErrorResult.Reason, done.Status.ErrorResult.Message)
	}

	var outputRows int64
	if done.Statistics != nil && done.Statistics.Load != nil {
		outputRows = done.Statistics.Load.OutputRows
	}

	slogctx.Info(ctx, "Load job finished", "job_id", done.JobReference.JobId, "output_rows", outputRows)

	return nil
}

func (s *Sink) ensureDataset(ctx context.Context) error {
	_, err := s.svc.Datasets.Get(s.projectID, s.dataset).Context(ctx).Do()
	if err == nil {
		return nil
	}
	if !gcpclient.IsNotFound(err) {
		return fmt.Errorf("getting dataset: %w", err)
	}

	slogctx.Info(ctx, "Creating dataset")

	_, err = s.svc.Datasets.Insert(s.projectID, &bigquery.Dataset{
		DatasetReference: &bigquery.DatasetReference{
			ProjectId: s.projectID,
			DatasetId: s.dataset,
		},
		Location: s.location,
	}).Context(ctx).Do()
	if err != nil && !gcpclient.IsConflict(err) {
		return fmt.Errorf("creating dataset: %w", err)
	}

	return nil
}

func (s *Sink) wait(ctx context.Context, job *bigquery.Job) (*bigquery.Job, error) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		if job.Status != nil && job.Status.State == jobStateDone {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		call := s.svc.Jobs.Get(s.projectID, job.JobReference.JobId).Context(ctx)
		if job.JobReference.Location != "" {
			call = call.Location(job.JobReference.Location)
		}

		var err error
		job, err = call.Do()
		if err != nil {
			return nil, fmt.Errorf("getting load job: %w", err)
		}
	}
}
