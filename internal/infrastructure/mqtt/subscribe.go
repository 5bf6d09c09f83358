package mqtt

import (
	"fmt"
	"sync"
)

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// subscriptionSet remembers filters so they can be replayed after a
// reconnect; the session is clean, so the broker forgets them.
type subscriptionSet struct {
	mu sync.RWMutex
	m  map[string]subscription
}

func (s *subscriptionSet) put(sub subscription) {
	s.mu.Lock()
	if s.m == nil {
		s.m = make(map[string]subscription)
	}
	s.m[sub.topic] = sub
	s.mu.Unlock()
}

func (s *subscriptionSet) drop(topic string) {
	s.mu.Lock()
	delete(s.m, topic)
	s.mu.Unlock()
}

func (s *subscriptionSet) each(fn func(subscription)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.m {
		fn(sub)
	}
}

func (s *subscriptionSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Subscribe registers handler for a topic filter such as
// "/asysbus/+/set/#" and waits for the broker's SUBACK. The filter is
// restored automatically after reconnects.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subs.put(subscription{topic: topic, qos: qos, handler: handler})
	err := await(c.paho.Subscribe(topic, qos, c.wrapHandler(handler)), defaultAckTimeout, ErrSubscribeFailed)
	if err != nil {
		c.subs.drop(topic)
	}
	return err
}
