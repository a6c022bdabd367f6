package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/jdelfes/nrf24le1-flasher/flash"
	"github.com/spf13/cobra"
)

// fsrCmd represents the fsr command
var fsrCmd = &cobra.Command{
	Use:   "fsr",
	Short: "Show the flash status and protect registers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mc, err := connectToTarget()
		if err != nil {
			return err
		}
		defer closeTarget(mc)

		if cmd.Flags().Changed("write") {
			v, _ := cmd.Flags().GetUint8("write")
			if err := mc.WriteFSR(flash.FSR(v)); err != nil {
				return err
			}
		}

		fsr, err := mc.ReadFSR()
		if err != nil {
			return err
		}
		fpcr, err := mc.ReadFPCR()
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		bold.Printf("FSR:    0x%02x\n", byte(fsr))
		for _, l := range fsr.Describe() {
			fmt.Println("  " + l)
		}
		bold.Printf("FPCR:   0x%02x\n", fpcr)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fsrCmd)
	fsrCmd.Flags().Uint8("write", 0, "Write this value to the FSR first")
}
