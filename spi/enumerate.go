package spi

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.bug.st/serial/enumerator"
)

// Bridge is an FT232R found on the USB bus.
type Bridge struct {
	Port    string
	Serial  string
	Product string
}

// sysfsUSB is where the kernel lists USB devices by bus and port path.
var sysfsUSB = "/sys/bus/usb/devices"

// ListBridges returns the FT232R bridges known to the operating system
// serial driver.
func ListBridges() ([]Bridge, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "could not list serial ports")
	}

	var out []Bridge
	for _, p := range ports {
		if !isFT232R(p) {
			continue
		}
		out = append(out, Bridge{
			Port:    p.Name,
			Serial:  p.SerialNumber,
			Product: p.Product,
		})
	}
	return out, nil
}

func isFT232R(p *enumerator.PortDetails) bool {
	return p.IsUSB &&
		strings.EqualFold(p.VID, fmt.Sprintf("%04x", ftdiVendorID)) &&
		strings.EqualFold(p.PID, fmt.Sprintf("%04x", ft232rProductID))
}

// usbSerial returns the serial number of the USB device at bus-port.
func usbSerial(bus, port uint8) (string, error) {
	path := filepath.Join(sysfsUSB, fmt.Sprintf("%d-%d", bus, port), "serial")
	bs, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "dev on bus %d and port %d not found", bus, port)
	}
	return strings.TrimSpace(string(bs)), nil
}
