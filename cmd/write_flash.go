package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// writeFlashCmd represents the write-flash command
var writeFlashCmd = &cobra.Command{
	Use:   "write-flash <file.hex>",
	Short: "Program an Intel HEX image record by record",
	Long: `Program every record of an Intel HEX image at its address and read it
back. Nothing is erased, so the area must be blank; use write-flash-smart to
update a chip that already holds firmware.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		mc, err := connectToTarget()
		if err != nil {
			return err
		}
		defer closeTarget(mc)

		if err := mc.WriteFlash(f); err != nil {
			return err
		}
		green.Println("OK")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(writeFlashCmd)
}
