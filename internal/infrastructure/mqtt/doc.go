// Package mqtt publishes user centre auth events to an MQTT broker.
//
// The broker is optional. When enabled, every login, logout, refresh,
// registration and permission change is published as a JSON message on
// <prefix>/events/<type>, and the service's liveness is kept as a retained
// message on <prefix>/system/status with a Last Will for crash detection.
//
// # Security Considerations
//
//   - Events never carry passwords, token values or TOTP secrets
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on localhost
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	recorder := mqtt.NewEventPublisher(client, log.Logger)
//	sessions := auth.NewSessionManager(ids, tokens, issuer, auth.WithEventRecorder(recorder))
package mqtt
