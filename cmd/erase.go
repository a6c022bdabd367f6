package cmd

import (
	"github.com/spf13/cobra"
)

// eraseFlashCmd represents the erase-flash command
var eraseFlashCmd = &cobra.Command{
	Use:   "erase-flash",
	Short: "Erase the main block",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mc, err := connectToTarget()
		if err != nil {
			return err
		}
		defer closeTarget(mc)

		if err := mc.EraseFlash(); err != nil {
			return err
		}
		green.Println("OK")
		return nil
	},
}

// eraseAllCmd represents the erase-all command
var eraseAllCmd = &cobra.Command{
	Use:   "erase-all",
	Short: "Erase the main block and the info page",
	Long: `Erase the main block and the info page, which also removes the read
back protection. The info page is backed up to --backup-dir first; write it
back with write-ip to restore the chip id and calibration data.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mc, err := connectToTarget()
		if err != nil {
			return err
		}
		defer closeTarget(mc)

		if err := mc.EraseAll(); err != nil {
			return err
		}
		green.Println("OK")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eraseFlashCmd)
	rootCmd.AddCommand(eraseAllCmd)
}
