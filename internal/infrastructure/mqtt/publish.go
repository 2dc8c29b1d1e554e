package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/weatherstation-core/internal/metric"
	"github.com/nerrad567/weatherstation-core/internal/series"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// SamplePayload is the JSON body published for every sample.
type SamplePayload struct {
	Metric    string    `json:"metric"`
	Unit      string    `json:"unit"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// HubPayload is the JSON body published when the hub state changes.
type HubPayload struct {
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Publish sends a message to the specified MQTT topic, waiting up to the
// default publish timeout for the broker.
//
// Parameters:
//   - topic: The topic to publish to
//   - payload: The message payload (max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker keeps the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()
	return c.publish(ctx, topic, payload, qos, retained)
}

// PublishRetained publishes a retained message with the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

func (c *Client) publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w: %w", ErrPublishFailed, ErrTimeout, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Name identifies the client as a relay sink.
func (c *Client) Name() string {
	return "mqtt"
}

// WriteSample publishes a sample, retained, on the metric's sample topic.
func (c *Client) WriteSample(ctx context.Context, m metric.Metric, s series.Sample) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %w", ErrPublishFailed, metric.ErrUnknownMetric)
	}

	payload, err := json.Marshal(SamplePayload{
		Metric:    m.String(),
		Unit:      m.Unit(),
		Value:     s.Value,
		Timestamp: s.Time.UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding sample: %w", ErrPublishFailed, err)
	}

	return c.publish(ctx, c.topics.Sample(m), payload, byte(c.cfg.QoS), true)
}

// PublishHubState publishes the hub connection state, retained, so
// dashboards can show why samples stopped.
func (c *Client) PublishHubState(state string) error {
	payload, err := json.Marshal(HubPayload{State: state, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("%w: encoding hub state: %w", ErrPublishFailed, err)
	}
	return c.PublishRetained(c.topics.Hub(), payload)
}
