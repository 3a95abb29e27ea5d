// Package influxdb writes the bridge's time series to InfluxDB 2.x.
//
// Two measurements are recorded:
//
//	measurement  tags        fields               written
//	unifi_state  path, site  value                per numeric or boolean state write
//	unifi_cycle  result      counts, duration_ms  per finished poll cycle
//
// Writes go through the library's non-blocking batch API. WriteCycle
// flushes, so each cycle's points are sent together once it finishes.
// Asynchronous write failures are reported through SetOnError.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteState("default.health.wlan.num_ap", 3.0, time.Now())
package influxdb
