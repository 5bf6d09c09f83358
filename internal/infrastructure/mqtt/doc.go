// Package mqtt provides MQTT client connectivity for the aSysBus bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - The availability topic: "OFF" as Last Will, "ON" after every connect
//   - Message publishing with timeouts
//   - Topic subscriptions that survive reconnects
//   - Traffic counters for the metrics endpoint (Stats)
//   - Topic names below the configured prefix (Topics)
//
// # Architecture
//
// The bridge never calls paho directly. The asb package declares the small
// client interface it needs and this package's Client satisfies it:
//
//	asb.Bridge ─► mqtt.Client ─► paho ─► Broker
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().ControlFilter(), 0,
//	    func(topic string, payload []byte) error {
//	        log.Printf("control: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish(client.Topics().Join("/0122/get/switch"), []byte("1"), 0, true)
package mqtt
