package cmd

import (
	"github.com/spf13/cobra"
)

// lockCmd represents the lock command
var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Disable read back of the main block",
	Long: `Disable read back of the main block. Only erase-all lifts the
protection again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mc, err := connectToTarget()
		if err != nil {
			return err
		}
		defer closeTarget(mc)

		if err := mc.Lock(); err != nil {
			return err
		}
		green.Println("locked")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lockCmd)
}
