package coordinator

import (
	"context"

	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

func (c *Coordinator) onDeviceStatus(ctx context.Context, conn interfaces.Connection, p types.Payload) {
	email := conn.ClientType()
	req := p.(*types.DeviceStatusRequest)

	location, err := c.targetDevice(ctx, email, req.DeviceLocation)
	if err == nil {
		err = c.forward(location, types.EventDeviceStatusRequest, types.DeviceStatusCommand{RequestedBy: email})
	}
	if err != nil {
		c.finish([]string{email}, types.EventDeviceStatusFeedback, nil, err)
	}
}

// onDeviceStatusResponse relays device telemetry. Nothing is stored.
func (c *Coordinator) onDeviceStatusResponse(ctx context.Context, conn interfaces.Connection, p types.Payload) {
	resp := p.(*types.DeviceStatusResponse)
	requesters := c.resolveRequesters(ctx, conn, "", types.EventDeviceStatusFeedback, resp.RequestedBy)

	if resp.Error {
		message := resp.Message
		if message == "" {
			message = "Failed to fetch device status"
		}
		c.reply(requesters, types.EventDeviceStatusFeedback, types.Feedback{Error: true, Message: message})
		return
	}

	location := resp.Location
	if location == "" {
		location = conn.ClientType()
	}
	c.reply(requesters, types.EventDeviceStatusFeedback, types.Feedback{
		Message: "Device status retrieved",
		Data: types.DeviceStatus{
			Location:              location,
			BatteryCapacity:       resp.BatteryCapacity,
			BatteryPercentage:     resp.BatteryPercentage,
			IsConnectedToInternet: resp.IsConnectedToInternet,
			IsCharging:            resp.IsCharging,
			IsFingerprintActive:   resp.IsFingerprintActive,
		},
	})
}
