package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Straits-AI/straits-agents-sub001/api"
)

var Cmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the current version of the bundler gateway",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("%s\n", api.Version)
	},
}
