package mqtt

import (
	"fmt"
	"strings"
)

// MQTT topic wildcards.
const (
	// WildcardSingle matches exactly one topic level.
	WildcardSingle = "+"

	// WildcardMulti matches any number of trailing levels, including none.
	WildcardMulti = "#"

	// levelSeparator divides topic levels.
	levelSeparator = "/"
)

// ValidateTopic checks a topic name used for publishing.
//
// Topic names must be non-empty and must not contain wildcards.
//
// Returns:
//   - error: ErrInvalidTopic (wrapped with the reason) or nil
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, WildcardSingle+WildcardMulti) {
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, topic)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: %q contains a NUL character", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a topic filter used for subscribing.
//
// Rules:
//   - The filter must be non-empty
//   - "+" must occupy a whole level ("a/+/c", not "a/b+/c")
//   - "#" must occupy the last level ("a/#", not "a/#/c")
//
// Returns:
//   - error: ErrInvalidTopic (wrapped with the reason) or nil
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: filter cannot be empty", ErrInvalidTopic)
	}

	levels := strings.Split(filter, levelSeparator)
	for i, level := range levels {
		if strings.Contains(level, WildcardMulti) && (level != WildcardMulti || i != len(levels)-1) {
			return fmt.Errorf("%w: %q: %s must be the whole last level", ErrInvalidTopic, filter, WildcardMulti)
		}
		if strings.Contains(level, WildcardSingle) && level != WildcardSingle {
			return fmt.Errorf("%w: %q: %s must be a whole level", ErrInvalidTopic, filter, WildcardSingle)
		}
	}
	return nil
}

// MatchTopic reports whether a topic name matches a subscription filter.
//
// Examples:
//
//	MatchTopic("moph", "moph")                     // true
//	MatchTopic("sensors/+/temp", "sensors/a/temp") // true
//	MatchTopic("sensors/#", "sensors")             // true
//	MatchTopic("sensors/+", "sensors/a/temp")      // false
//	MatchTopic("#", "$SYS/uptime")                  // false
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}
	// Wildcards at the first level never match system topics.
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, WildcardSingle) || strings.HasPrefix(filter, WildcardMulti)) {
		return false
	}
	if filter == WildcardMulti {
		return true
	}

	filterLevels := strings.Split(filter, levelSeparator)
	topicLevels := strings.Split(topic, levelSeparator)

	for i, f := range filterLevels {
		if f == WildcardMulti {
			return true
		}
		if i >= len(topicLevels) {
			return false
		}
		if f != WildcardSingle && f != topicLevels[i] {
			return false
		}
	}

	return len(topicLevels) == len(filterLevels)
}

// HasWildcard reports whether a filter contains "+" or "#".
func HasWildcard(filter string) bool {
	return strings.ContainsAny(filter, WildcardSingle+WildcardMulti)
}
