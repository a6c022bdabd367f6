package cmd

import (
	"github.com/spf13/cobra"
)

// readFlashCmd represents the read-flash command
var readFlashCmd = &cobra.Command{
	Use:   "read-flash <outfile>",
	Short: "Read the main block and data memory",
	Long: `Read the 16 KiB main block followed by the data memory. The output is
Intel HEX when the file name ends in .hex or .ihx and raw binary otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mc, err := connectToTarget()
		if err != nil {
			return err
		}
		defer closeTarget(mc)

		data, err := mc.ReadFlash()
		if err != nil {
			return err
		}
		return writeImage(args[0], data)
	},
}

func init() {
	rootCmd.AddCommand(readFlashCmd)
}
