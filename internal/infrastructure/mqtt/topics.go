package mqtt

import (
	"strings"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "usercenter"

// Topics builds the topic names under a deployment prefix.
//
//	topics := mqtt.NewTopics("usercenter")
//	topics.Event("login.succeeded") // usercenter/events/login.succeeded
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Leading and trailing
// slashes are stripped.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root all topics share.
func (t Topics) Prefix() string {
	return t.prefix
}

// Event returns the topic for one auth event type.
func (t Topics) Event(eventType string) string {
	return t.prefix + "/events/" + eventType
}

// AllEvents is the subscription filter matching every event topic.
func (t Topics) AllEvents() string {
	return t.prefix + "/events/#"
}

// SystemStatus is the retained liveness topic, also used for the Last Will.
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// validatePublishTopic rejects topics a broker would refuse for PUBLISH.
func validatePublishTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#\x00") {
		return ErrInvalidTopic
	}
	return nil
}
