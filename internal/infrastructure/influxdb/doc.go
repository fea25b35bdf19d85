// Package influxdb records user centre auth events as InfluxDB time series.
//
// Each event becomes one point in the auth_events measurement, tagged by
// event type and outcome. Login failure rates, refresh volume and
// permission changes can then be graphed without touching the SQLite
// audit log.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influxdb write failed", "error", err) })
//	recorders = append(recorders, client)
package influxdb
