package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/connector-manager/internal/business"
	"github.com/openkcm/connector-manager/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Connector Manager API server",
		"Connector Manager API server hosts the pages that connect provider accounts",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
