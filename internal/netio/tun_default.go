//go:build !linux

package netio

import (
	"fmt"

	"github.com/songgao/water"
)

// OpenTUN creates a tunnel device. The platform picks its name.
func OpenTUN(string) (*water.Interface, error) {
	ifce, err := water.New(water.Config{DeviceType: water.TUN})
	if err != nil {
		return nil, fmt.Errorf("failed to open tun device: %w", err)
	}

	return ifce, nil
}
