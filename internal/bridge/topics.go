package bridge

import "strings"

// Topics derives the MQTT topics for one lamp.
type Topics struct {
	Prefix string
	ID     string
}

// State is the retained JSON state topic.
func (t Topics) State() string { return t.Prefix + "/" + t.ID + "/state" }

// Command is the topic Home Assistant publishes commands to.
func (t Topics) Command() string { return t.Prefix + "/" + t.ID + "/set" }

// Availability carries "online"/"offline" for this lamp.
func (t Topics) Availability() string { return t.Prefix + "/" + t.ID + "/availability" }

// StatusTopic is the bridge-level status topic, also used as the LWT so the
// broker flips it to offline if the bridge dies.
func StatusTopic(prefix string) string { return prefix + "/bridge/status" }

// LampID derives the topic segment for a lamp: the configured name when one
// is set, otherwise the MAC with the colons dropped.
func LampID(name, mac string) string {
	if name != "" {
		return sanitizeID(name)
	}
	return sanitizeID(strings.ReplaceAll(mac, ":", ""))
}

// sanitizeID lowercases s and replaces anything outside [a-z0-9_-] so the
// result is safe in MQTT topics and Home Assistant object IDs.
func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
