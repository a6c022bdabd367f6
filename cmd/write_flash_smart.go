package cmd

import (
	"os"

	"github.com/jdelfes/nrf24le1-flasher/flash"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// writeFlashSmartCmd represents the write-flash-smart command
var writeFlashSmartCmd = &cobra.Command{
	Use:   "write-flash-smart <file.hex>",
	Short: "Update the flash a page at a time",
	Long: `Write an Intel HEX image page by page. Pages that already hold the
image are skipped, and a page is only erased when a bit has to go from 0 to 1.
Bytes of a page outside the image are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := flash.SmartOptions{}
		opts.Offset, _ = cmd.Flags().GetUint16("offset")
		opts.HighestOffset, _ = cmd.Flags().GetBool("highest-offset")
		opts.SkipNUPPCheck, _ = cmd.Flags().GetBool("skip-nupp-check")
		opts.MatchNUPPWithOffset, _ = cmd.Flags().GetBool("match-nupp")
		opts.ExtraVerification, _ = cmd.Flags().GetBool("verify")

		mc, err := connectToTarget()
		if err != nil {
			return err
		}
		defer closeTarget(mc)

		plan, err := mc.WriteFlashSmartFromFile(args[0], opts)
		if err != nil {
			return err
		}

		if verbose {
			plan.Dump(os.Stdout)
		}

		written := 0
		for i := range plan.Pages {
			if plan.Pages[i].WriteNeeded {
				written++
			}
		}
		logrus.Infof("image at offset 0x%04x, %d pages written", plan.Offset, written)
		green.Println("OK")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(writeFlashSmartCmd)
	writeFlashSmartCmd.Flags().Uint16P("offset", "o", 0, "Add this to every record address")
	writeFlashSmartCmd.Flags().Bool("highest-offset", false, "Place the image at the top of the flash")
	writeFlashSmartCmd.Flags().Bool("skip-nupp-check", false, "Allow writing into protected pages")
	writeFlashSmartCmd.Flags().Bool("match-nupp", false, "Set NUPP to the offset after writing")
	writeFlashSmartCmd.Flags().BoolP("verify", "V", true, "Read every record back after writing")
}
