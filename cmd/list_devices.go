package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jdelfes/nrf24le1-flasher/spi"
	"github.com/spf13/cobra"
)

// listDevicesCmd represents the list-devices command
var listDevicesCmd = &cobra.Command{
	Use:   "list-devices",
	Short: "List the FT232R bridges on the USB bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bridges, err := spi.ListBridges()
		if err != nil {
			return err
		}
		if len(bridges) == 0 {
			fmt.Println("no FT232R found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PORT\tSERIAL\tPRODUCT")
		for _, b := range bridges {
			fmt.Fprintf(w, "%s\t%s\t%s\n", b.Port, b.Serial, b.Product)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listDevicesCmd)
}
