package ticketstatus

import (
	"strings"
)

type Status struct {
	Name string
}

func (s Status) Code() string {
	return s.Name
}

func (s Status) Label() string {
	if len(s.Name) == 0 {
		return ""
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

type Enum struct {
	Ordered   Status
	Preparing Status
	Ready     Status
	Collected Status
}

var Statuses = Enum{
	Ordered:   Status{Name: "ordered"},
	Preparing: Status{Name: "preparing"},
	Ready:     Status{Name: "ready"},
	Collected: Status{Name: "collected"},
}

var All = []Status{
	Statuses.Ordered,
	Statuses.Preparing,
	Statuses.Ready,
	Statuses.Collected,
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
