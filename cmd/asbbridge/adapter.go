package main

import (
	"github.com/nerrad567/asysbus-bridge/internal/bridges/asb"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/mqtt"
)

// brokerClient adapts *mqtt.Client to asb.MQTTClient. The bridge takes a
// plain handler func so the asb package does not depend on the client's
// named handler type.
type brokerClient struct {
	*mqtt.Client
}

var _ asb.MQTTClient = brokerClient{}

// Subscribe forwards to the wrapped client.
func (b brokerClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return b.Client.Subscribe(topic, qos, handler)
}
