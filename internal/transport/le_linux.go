//go:build linux

package transport

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

func openHCI(id int) (ble.Device, error) {
	return linux.NewDevice(ble.OptDeviceID(id))
}
