package config

import "strings"

// TopicMatches reports whether topic matches an MQTT subscription filter.
// "+" matches one level, a trailing "#" matches the parent and everything below it.
// Wildcards in the first level never match topics starting with "$".
func TopicMatches(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	if strings.HasPrefix(topic, "$") && (f[0] == "+" || f[0] == "#") {
		return false
	}

	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

// FilterReachesPrefix reports whether filter matches at least one topic of the
// form <prefix>/<level>. Any literal in the last position counts, since a
// device can carry that name.
func FilterReachesPrefix(filter, prefix string) bool {
	f := strings.Split(filter, "/")
	t := append(strings.Split(prefix, "/"), "")

	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if i == len(t)-1 {
			continue
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
