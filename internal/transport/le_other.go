//go:build !linux

package transport

import (
	"errors"

	"github.com/go-ble/ble"
)

func openHCI(int) (ble.Device, error) {
	return nil, errors.New("hci access requires linux")
}
