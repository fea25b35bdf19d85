package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ZZSZ-YCT/customSystem/internal/auth"
)

// MeasurementAuthEvents is the measurement every auth event is written to.
const MeasurementAuthEvents = "auth_events"

// AuthEventPoint builds the point for ev. Event type and outcome are tags
// so dashboards can group by them; usernames and addresses are fields to
// keep series cardinality bounded.
func AuthEventPoint(ev auth.Event) *write.Point {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := map[string]any{
		"count": 1,
	}
	if ev.Username != "" {
		fields["username"] = ev.Username
	}
	if ev.Target != "" {
		fields["target"] = ev.Target
	}
	if ev.RemoteAddr != "" {
		fields["remote_addr"] = ev.RemoteAddr
	}

	return write.NewPoint(
		MeasurementAuthEvents,
		map[string]string{
			"type":    string(ev.Type),
			"outcome": ev.Outcome(),
		},
		fields,
		ts,
	)
}

// WriteAuthEvent queues ev for the next batch. Dropped silently after Close.
func (c *Client) WriteAuthEvent(ev auth.Event) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(AuthEventPoint(ev))
}

// Record implements auth.EventRecorder.
func (c *Client) Record(_ context.Context, ev auth.Event) {
	c.WriteAuthEvent(ev)
}
