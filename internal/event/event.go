// Package event models accounting events as ordered lists of printable
// "Name = Value" attributes and reads them from detail-format streams.
package event

import (
	"strings"

	"github.com/google/uuid"
)

// StatusTypeAttribute marks an accounting record. Events without it are
// not forwarded.
const StatusTypeAttribute = "Acct-Status-Type"

// Event is one accounting record.
type Event struct {
	ID            string
	Attributes    []string
	HasStatusType bool
}

// New builds an event from already rendered attributes, in order. Each
// attribute is normalized to "Name = Value".
func New(attrs ...string) Event {
	ev := Event{
		ID:         uuid.NewString(),
		Attributes: make([]string, 0, len(attrs)),
	}
	for _, a := range attrs {
		ev.add(a)
	}
	return ev
}

func (e *Event) add(raw string) {
	name, value, ok := Split(raw)
	if !ok {
		e.Attributes = append(e.Attributes, strings.TrimSpace(raw))
		return
	}
	if strings.EqualFold(name, StatusTypeAttribute) {
		e.HasStatusType = true
	}
	e.Attributes = append(e.Attributes, Render(name, value))
}

// Split parses "Name = Value" (operators other than "=" are accepted the
// way detail files write them, e.g. "+=" or ":="). Surrounding whitespace
// is trimmed and a quoted value is kept quoted.
func Split(raw string) (name, value string, ok bool) {
	i := strings.IndexByte(raw, '=')
	if i <= 0 {
		return "", "", false
	}
	name = strings.TrimRight(strings.TrimSpace(raw[:i]), "+:-")
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \t") {
		return "", "", false
	}
	return name, strings.TrimSpace(raw[i+1:]), true
}

// Render formats an attribute the way it is sent to the endpoint.
func Render(name, value string) string {
	return name + " = " + value
}

// Attribute returns the value of the first attribute called name.
func (e Event) Attribute(name string) (string, bool) {
	for _, a := range e.Attributes {
		n, v, ok := Split(a)
		if ok && strings.EqualFold(n, name) {
			return v, true
		}
	}
	return "", false
}
