package business

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/connector-manager/internal/config"
	"github.com/openkcm/connector-manager/internal/extract"
	"github.com/openkcm/connector-manager/internal/extract/extractsql"
	"github.com/openkcm/connector-manager/internal/provider"
	"github.com/openkcm/connector-manager/internal/sink"
	sinkbigquery "github.com/openkcm/connector-manager/internal/sink/bigquery"
	sinkpostgres "github.com/openkcm/connector-manager/internal/sink/postgres"
	"github.com/openkcm/connector-manager/internal/valkeyclient"
)

// ExtractMain loads the records of one subject into the configured sink.
func ExtractMain(ctx context.Context, cfg *config.Config) error {
	var valkeyClient valkey.Client
	if cfg.SecretStore.Type == config.SecretStoreValKey {
		c, err := valkeyclient.FromConfig(cfg.ValKey)
		if err != nil {
			return err
		}
		defer c.Close()

		valkeyClient = c
	}

	secrets, err := secretStoreFromConfig(ctx, cfg, valkeyClient)
	if err != nil {
		return err
	}

	var db *pgxpool.Pool
	if cfg.Database.Configured() {
		db, err = dbPoolFromConfig(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	s, err := sinkFromConfig(ctx, cfg, db)
	if err != nil {
		return err
	}

	job := extract.NewJob(secrets, s, jobOptions(cfg, db)...)

	report, err := job.Run(ctx, extract.Request{
		Subject:  cfg.Extraction.Subject,
		Provider: cfg.Extraction.Provider,
		Table:    cfg.Extraction.Table,
	})
	if err != nil {
		return fmt.Errorf("extracting %s records of %s: %w", cfg.Extraction.Provider, cfg.Extraction.Subject, err)
	}

	slogctx.Info(ctx, "Extraction report",
		"secret", report.SecretKey,
		"records", report.Records,
		"pages", report.Pages,
		"written", report.Written,
	)

	return nil
}

func jobOptions(cfg *config.Config, db *pgxpool.Pool) []extract.Option {
	opts := []extract.Option{
		extract.WithLister(provider.Mailchimp, extract.MailchimpCampaigns{
			Client:   httpClientFromConfig(cfg),
			BaseURL:  cfg.Extraction.APIBaseURL,
			PageSize: cfg.Extraction.PageSize,
			MaxPages: cfg.Extraction.MaxPages,
		}),
	}

	if db != nil {
		opts = append(opts, extract.WithRunLog(extractsql.NewRepository(db)))
	}

	return opts
}

// sinkFromConfig selects the warehouse. The postgres sink writes to the
// configured database.
func sinkFromConfig(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (sink.Sink, error) {
	switch cfg.Sink.Type {
	case config.SinkBigQuery, "":
		s, err := sinkbigquery.NewSink(ctx, cfg.Sink.ProjectID, cfg.Sink.Dataset,
			sinkbigquery.WithEndpoint(cfg.Sink.Endpoint),
			sinkbigquery.WithLocation(cfg.Sink.Location),
		)
		if err != nil {
			return nil, fmt.Errorf("creating bigquery sink: %w", err)
		}

		return s, nil
	case config.SinkPostgres:
		if db == nil {
			return nil, errors.New("postgres sink needs a configured database")
		}

		return sinkpostgres.NewSink(db), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Sink.Type)
	}
}
