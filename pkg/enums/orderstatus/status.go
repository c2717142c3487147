package orderstatus

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is one state of a delivery order.
type Status struct {
	Name string
}

func (s Status) Code() string {
	return s.Name
}

// Label renders the code for humans: "en_route" becomes "En Route".
func (s Status) Label() string {
	return cases.Title(language.Und).String(strings.ReplaceAll(s.Name, "_", " "))
}

// IsTerminal reports whether no transition may leave this state.
func (s Status) IsTerminal() bool {
	return s.Name == Statuses.Delivered.Name || s.Name == Statuses.Cancelled.Name
}

type Enum struct {
	Pending   Status
	Confirmed Status
	Preparing Status
	Ready     Status
	EnRoute   Status
	Delivered Status
	Cancelled Status
}

var Statuses = Enum{
	Pending:   Status{Name: "pending"},
	Confirmed: Status{Name: "confirmed"},
	Preparing: Status{Name: "preparing"},
	Ready:     Status{Name: "ready"},
	EnRoute:   Status{Name: "en_route"},
	Delivered: Status{Name: "delivered"},
	Cancelled: Status{Name: "cancelled"},
}

// All lists the states in lifecycle order, cancelled last.
var All = []Status{
	Statuses.Pending,
	Statuses.Confirmed,
	Statuses.Preparing,
	Statuses.Ready,
	Statuses.EnRoute,
	Statuses.Delivered,
	Statuses.Cancelled,
}

// ByName returns the status for a given name, or nil if not found
func ByName(name string) *Status {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}

// IsValid reports whether name is one of the defined states.
func IsValid(name string) bool {
	return ByName(name) != nil
}

// LabelFor is Label for a raw status code. Unknown codes are returned as is.
func LabelFor(name string) string {
	if s := ByName(name); s != nil {
		return s.Label()
	}
	return name
}

// IsTerminalName is IsTerminal for a raw status code.
func IsTerminalName(name string) bool {
	s := ByName(name)
	return s != nil && s.IsTerminal()
}
