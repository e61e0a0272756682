package commands

import (
	"github.com/Osiyomeoh/carrychain/src/config"
	"github.com/spf13/cobra"
)

var _config = config.NewDefaultConfig()

//RootCmd is the root command for CarryChain
var RootCmd = &cobra.Command{
	Use:              "carrychain",
	Short:            "peer-to-peer luggage delivery marketplace",
	TraverseChildren: true,
}

func init() {
	RootCmd.AddCommand(
		NewRunCmd(),
		NewKeygenCmd(),
		VersionCmd,
	)
}
