package orderstatus

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
	Opened        Status
	Ordered       Status
	Preparing     Status
	Ready         Status
	Delivered     Status
	BillRequested Status
	Paid          Status
	Closed        Status
	Removed       Status
}

var Statuses = Enum{
	Opened:        Status{Name: "opened"},
	Ordered:       Status{Name: "ordered"},
	Preparing:     Status{Name: "preparing"},
	Ready:         Status{Name: "ready"},
	Delivered:     Status{Name: "delivered"},
	BillRequested: Status{Name: "billrequested"},
	Paid:          Status{Name: "paid"},
	Closed:        Status{Name: "closed"},
	Removed:       Status{Name: "removed"},
}

// All lists the statuses an order can hold. Removed only applies to items.
var All = []Status{
	Statuses.Opened,
	Statuses.Ordered,
	Statuses.Preparing,
	Statuses.Ready,
	Statuses.Delivered,
	Statuses.BillRequested,
	Statuses.Paid,
	Statuses.Closed,
}

// ByName returns the order status for a given name, or nil if not found
func ByName(name string) *Status {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}

// IsItemStatus reports whether name is valid for an order item.
func IsItemStatus(name string) bool {
	return name == Statuses.Removed.Name || ByName(name) != nil
}

// IsActivePrep reports whether the order is still waiting on stations.
func IsActivePrep(name string) bool {
	switch name {
	case Statuses.Opened.Name, Statuses.Ordered.Name, Statuses.Preparing.Name:
		return true
	}
	return false
}

// IsPastPrep reports whether station tickets are no longer relevant.
func IsPastPrep(name string) bool {
	switch name {
	case Statuses.Delivered.Name, Statuses.BillRequested.Name, Statuses.Paid.Name, Statuses.Closed.Name:
		return true
	}
	return false
}

// IsSubmittable reports whether an item in this status may still go to a station.
func IsSubmittable(name string) bool {
	return name == Statuses.Opened.Name || name == Statuses.Ordered.Name
}

var transitions = map[string][]string{
	"opened":        {"ordered", "billrequested", "closed"},
	"ordered":       {"preparing", "ready", "delivered", "billrequested", "closed"},
	"preparing":     {"ready", "delivered", "billrequested", "closed"},
	"ready":         {"delivered", "billrequested", "closed"},
	"delivered":     {"ordered", "billrequested", "paid", "closed"},
	"billrequested": {"paid", "closed"},
	"paid":          {"closed"},
	"closed":        {},
}

// CanTransition reports whether moving an order from one status to another
// is a legal forward step. Projection does not consult it; it is meant for
// code that decides which events to append.
func CanTransition(from, to string) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	for _, n := range next {
		if n == to {
			return true
		}
	}
	return false
}
