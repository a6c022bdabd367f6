package flash

import (
	"github.com/sigurn/crc16"
	"golang.org/x/exp/constraints"
)

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// Checksum will return the CRC-16/XMODEM of the provided data, as printed
// next to every dump and backup
func Checksum(bs []byte) uint16 {
	return crc16.Checksum(bs, crcTable)
}

// roundUp will round v up to a multiple of n
func roundUp[T constraints.Integer](v, n T) T {
	return (v + n - 1) / n * n
}
