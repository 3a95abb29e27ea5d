package mqtt

import "fmt"

// Subscribe registers handler for topic, which may use the + and #
// wildcards (e.g. graylogic/command/unifi/#). The subscription is
// remembered and sent again after every reconnect.
//
// Handlers run on paho's goroutines. A returned error or a panic is logged
// and the message dropped.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()

	if err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), defaultPublishTimeout, ErrSubscribeFailed); err != nil {
		c.forget(topic)
		return err
	}
	return nil
}

// Unsubscribe drops the subscription for topic, which must match the
// pattern passed to Subscribe exactly. Messages already in flight may
// still be delivered.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)
	return await(c.client.Unsubscribe(topic), defaultPublishTimeout, ErrUnsubscribeFailed)
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// subscriptionCount returns the number of remembered subscriptions.
func (c *Client) subscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// resubscribe sends every remembered subscription again after a reconnect.
// paho runs the connect handler on its own goroutine, so waiting is safe.
func (c *Client) resubscribe() {
	c.subMu.RLock()
	pending := make(map[string]subscription, len(c.subscriptions))
	for topic, sub := range c.subscriptions {
		pending[topic] = sub
	}
	c.subMu.RUnlock()

	for topic, sub := range pending {
		err := await(c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler)), defaultPublishTimeout, ErrSubscribeFailed)
		if err != nil {
			c.logWarn("MQTT resubscribe failed", "topic", topic, "error", err)
		}
	}
}
