package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/linkpulse/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show linkpulse version information",
	Long:  `Display version, build time, commit hash, and platform information for the linkpulse binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if wantJSON(cmd) {
			return printJSON(info)
		}
		fmt.Println(info.String())
		fmt.Printf("Platform: %s\n", info.Platform)
		fmt.Printf("Go: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
}
