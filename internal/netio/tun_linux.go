//go:build linux

package netio

import (
	"fmt"

	"github.com/songgao/water"
)

// OpenTUN creates or attaches the tunnel device name. Addressing and routes
// are left to the administrator.
func OpenTUN(name string) (*water.Interface, error) {
	cfg := water.Config{DeviceType: water.TUN}
	cfg.Name = name

	ifce, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open tun device %q: %w", name, err)
	}

	return ifce, nil
}
