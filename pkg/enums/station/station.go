package station

import "strings"

type Station struct {
	Name string
}

func (s Station) Code() string {
	return s.Name
}

func (s Station) Label() string {
	// Capitalize first letter
	if len(s.Name) == 0 {
		return ""
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

type Enum struct {
	Kitchen Station
	Bar     Station
}

var Stations = Enum{
	Kitchen: Station{Name: "kitchen"},
	Bar:     Station{Name: "bar"},
}

// All is also the order in which tickets are cut for a submission.
var All = []Station{
	Stations.Kitchen,
	Stations.Bar,
}

// ByName returns the station for a given name, or nil if not found
func ByName(name string) *Station {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}

// Default receives every item type not listed in routes.
var Default = Stations.Bar

var routes = map[string]Station{
	"food": Stations.Kitchen,
}

// ForItemType returns the preparation station for a menu item type.
func ForItemType(itemType string) Station {
	if s, ok := routes[strings.ToLower(strings.TrimSpace(itemType))]; ok {
		return s
	}
	return Default
}
