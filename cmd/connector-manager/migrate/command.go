package migrate

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/connector-manager/internal/business"
	"github.com/openkcm/connector-manager/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Connector Manager migrations",
		"Applies the database migrations of the extraction run log",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
