package extract

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openkcm/connector-manager/internal/business"
	"github.com/openkcm/connector-manager/internal/cmdutils"
	"github.com/openkcm/connector-manager/internal/config"
)

type flags struct {
	subject  string
	provider string
	table    string
}

// apply overrides the configured extraction with the flags that were set.
func (f flags) apply(cfg *config.Config) {
	if f.subject != "" {
		cfg.Extraction.Subject = f.subject
	}
	if f.provider != "" {
		cfg.Extraction.Provider = f.provider
	}
	if f.table != "" {
		cfg.Extraction.Table = f.table
	}
}

func Cmd(buildInfo string) *cobra.Command {
	var f flags

	cmd := cmdutils.CobraCommand(
		"extract",
		"Connector Manager extraction job",
		"Loads the records of a connected account into the configured sink, replacing the target table",
		buildInfo,
		cmdutils.RunAsJob,
		func(ctx context.Context, cfg *config.Config) error {
			f.apply(cfg)
			return business.ExtractMain(ctx, cfg)
		},
	)

	cmd.Flags().StringVar(&f.subject, "subject", "", "subject whose credential is used")
	cmd.Flags().StringVar(&f.provider, "provider", "", "provider to extract from")
	cmd.Flags().StringVar(&f.table, "table", "", "destination table")

	return cmd
}
