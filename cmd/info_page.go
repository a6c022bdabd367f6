package cmd

import (
	"os"

	"github.com/jdelfes/nrf24le1-flasher/flash"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// readIPCmd represents the read-ip command
var readIPCmd = &cobra.Command{
	Use:   "read-ip <outfile>",
	Short: "Read the info page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mc, err := connectToTarget()
		if err != nil {
			return err
		}
		defer closeTarget(mc)

		page, err := mc.ReadInfoPage()
		if err != nil {
			return err
		}
		green.Printf("chip id %s\n", flash.ChipIDFromPage(page))
		return writeImage(args[0], page)
	},
}

// writeIPCmd represents the write-ip command
var writeIPCmd = &cobra.Command{
	Use:   "write-ip <file.bin>",
	Short: "Write the info page",
	Long: `Write a raw 512 byte info page image, e.g. a backup. The chip id in the
image must match the chip unless --force is given. The current page is backed
up first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if len(page) != flash.PageSize {
			return errors.Errorf("%s is %d bytes, want %d", args[0], len(page), flash.PageSize)
		}
		force, _ := cmd.Flags().GetBool("force")

		mc, err := connectToTarget()
		if err != nil {
			return err
		}
		defer closeTarget(mc)

		if err := mc.WriteInfoPage(page, force); err != nil {
			return err
		}
		green.Println("OK")
		return nil
	},
}

// readIDCmd represents the read-id command
var readIDCmd = &cobra.Command{
	Use:   "read-id",
	Short: "Print the chip id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mc, err := connectToTarget()
		if err != nil {
			return err
		}
		defer closeTarget(mc)

		id, err := mc.Identify()
		if err != nil {
			return err
		}
		green.Println(id)
		return nil
	},
}

// nuppCmd represents the nupp command
var nuppCmd = &cobra.Command{
	Use:   "nupp [pages]",
	Short: "Show or set the number of unprotected pages",
	Long: `Without an argument print NUPP, the number of main block pages open to
writes. With an argument store a new value in the info page, after taking a
backup.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var nupp uint64
		if len(args) == 1 {
			var err error
			if nupp, err = parseUint(args[0], 8); err != nil {
				return err
			}
		}

		mc, err := connectToTarget()
		if err != nil {
			return err
		}
		defer closeTarget(mc)

		if len(args) == 1 {
			if err := mc.SetNUPP(byte(nupp)); err != nil {
				return err
			}
		}

		n, err := mc.ReadNUPP()
		if err != nil {
			return err
		}
		green.Printf("NUPP %d\n", n)
		return nil
	},
}

// writeUserAreaCmd represents the write-userarea command
var writeUserAreaCmd = &cobra.Command{
	Use:   "write-userarea <devices.db>",
	Short: "Write the radio settings of the chip from a device database",
	Long: `Look the chip id up in a device database and write its transmit
address, channel and power to the user area of the info page. The database is
YAML when its name ends in .yaml or .yml, and otherwise has one line per chip:

  <chip id> <tx address> <channel> <power>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := flash.LoadDeviceDB(args[0])
		if err != nil {
			return err
		}

		mc, err := connectToTarget()
		if err != nil {
			return err
		}
		defer closeTarget(mc)

		if err := mc.WriteUserArea(db); err != nil {
			return err
		}
		green.Println("OK")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(readIPCmd)
	rootCmd.AddCommand(writeIPCmd)
	rootCmd.AddCommand(readIDCmd)
	rootCmd.AddCommand(nuppCmd)
	rootCmd.AddCommand(writeUserAreaCmd)
	writeIPCmd.Flags().BoolP("force", "f", false, "Write even if the chip id differs")
}
