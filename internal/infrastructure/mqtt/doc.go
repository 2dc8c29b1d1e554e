// Package mqtt publishes the station's samples and status over MQTT.
//
// This package manages:
//   - Connection to the broker with auto-reconnect after the first connect
//   - A retained status topic with Last Will and Testament
//   - Retained per-metric sample topics (the relay sink contract)
//   - The hub connection state topic
//   - Display navigation commands received on command/view
//
// Topic layout, for station "roof":
//
//	weatherstation/roof/status
//	weatherstation/roof/hub
//	weatherstation/roof/sample/temperature
//	weatherstation/roof/command/view
//
// # Security Considerations
//
//   - Use TLS (mqtt.broker.tls) when the broker is not on the local host
//   - Keep the password in WEATHERSTATION_MQTT_PASSWORD, not in the YAML
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Station.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	relay.New(store, logger, client)
//	hubClient.SetOnStateChange(func(s hub.State) { client.PublishHubState(s.String()) })
package mqtt
