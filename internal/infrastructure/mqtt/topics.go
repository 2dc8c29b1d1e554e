package mqtt

import (
	"strings"

	"github.com/nerrad567/weatherstation-core/internal/metric"
)

// TopicRoot is the first level of every station topic.
const TopicRoot = "weatherstation"

// Topics builds the MQTT topics of one station:
//
//	weatherstation/{station}/status          online/offline, retained, LWT
//	weatherstation/{station}/hub             hub connection state, retained
//	weatherstation/{station}/sample/{metric} latest sample, retained
//	weatherstation/{station}/command/view    "next" or "prev"
type Topics struct {
	base string
}

// NewTopics returns the topic builder for a station. Characters that are
// not allowed in a topic level are replaced with underscores.
func NewTopics(station string) Topics {
	return Topics{base: TopicRoot + "/" + sanitizeLevel(station)}
}

// Status returns the station status topic, also used as the LWT topic.
func (t Topics) Status() string {
	return t.base + "/status"
}

// Hub returns the topic carrying the hub connection state.
func (t Topics) Hub() string {
	return t.base + "/hub"
}

// Sample returns the topic for a metric's samples.
//
// Example: weatherstation/roof/sample/temperature
func (t Topics) Sample(m metric.Metric) string {
	return t.base + "/sample/" + m.String()
}

// AllSamples matches the sample topics of every metric.
func (t Topics) AllSamples() string {
	return t.base + "/sample/+"
}

// ViewCommand returns the topic that accepts display navigation.
func (t Topics) ViewCommand() string {
	return t.base + "/command/view"
}

// All matches every topic of the station.
func (t Topics) All() string {
	return t.base + "/#"
}

func sanitizeLevel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', 0:
			return '_'
		}
		return r
	}, s)
}
