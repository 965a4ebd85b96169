// Package signals turns unstructured subprocess output lines into events.
//
// Every text contract dcov relies on (port announcements, pass and fail
// markers, service readiness) lives here as a Rule so the patterns can be
// tested without spawning processes.
package signals

import (
	"regexp"
	"strconv"
)

// Kind identifies what a matched line means.
type Kind int

const (
	// None is returned for lines that match no rule.
	None Kind = iota
	// Port announces a VM service port; Event.Port carries it.
	Port
	// Passed marks a test suite that finished successfully.
	Passed
	// Failed marks a test suite with failing tests.
	Failed
	// ServerFailed marks a VM that could not start its service endpoint.
	ServerFailed
	// Ready marks an auxiliary service that accepts connections.
	Ready
	// BindFailed marks an auxiliary service that could not start.
	BindFailed
)

func (k Kind) String() string {
	switch k {
	case Port:
		return "port"
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case ServerFailed:
		return "server-failed"
	case Ready:
		return "ready"
	case BindFailed:
		return "bind-failed"
	default:
		return "none"
	}
}

// Event is a classified line.
type Event struct {
	Kind Kind
	Port int
	Line string
}

// Rule maps a pattern to an event kind. Port rules must capture the port
// number in the first group.
type Rule struct {
	Pattern *regexp.Regexp
	Kind    Kind
}

// Classifier matches lines against rules in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier from rules.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the event for line, or an event of kind None.
func (c *Classifier) Classify(line string) Event {
	for _, rule := range c.rules {
		match := rule.Pattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		if rule.Kind == Port {
			if len(match) < 2 {
				continue
			}
			port, err := strconv.Atoi(match[1])
			if err != nil {
				continue
			}
			return Event{Kind: Port, Port: port, Line: line}
		}
		return Event{Kind: rule.Kind, Line: line}
	}
	return Event{Kind: None, Line: line}
}

// PortOf returns the announced VM service port in line, if any.
func PortOf(line string) (int, bool) {
	ev := portOnly.Classify(line)
	return ev.Port, ev.Kind == Port
}
