package api

import (
	"context"
	"fmt"
)

// Devices returns the device catalog for platform. Only android is served.
func (c *Client) Devices(ctx context.Context, platform string) ([]Device, error) {
	const op = "list devices"
	if platform != "android" {
		return nil, fmt.Errorf("%s: unsupported platform %q", op, platform)
	}
	resp, err := c.doBearer(ctx, op, c.endpoint("/v1/devices/"+platform, nil))
	if err != nil {
		return nil, err
	}
	var out []Device
	if err := decode(resp, op, &out); err != nil {
		return nil, err
	}
	return out, nil
}
