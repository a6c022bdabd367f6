package main

import (
	"os"

	"github.com/jdelfes/nrf24le1-flasher/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
