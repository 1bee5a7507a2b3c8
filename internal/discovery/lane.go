package discovery

import (
	"fmt"
	"strings"
)

// Lane identifies one independently fetchable slice of the discovery page.
// It is a closed set: the only values are the three fixed lanes below and
// LaneCategory(category). Invalid lane names are rejected at parse time
// instead of falling through a default branch.
type Lane struct {
	name     string
	category string
}

var (
	LaneTrending    = Lane{name: "trending"}
	LaneNewArrivals = Lane{name: "new_arrivals"}
	LaneEditorsPick = Lane{name: "editors_pick"}
)

// LaneCategory is the category-specific lane. The category is a parameter,
// not part of the lane name.
func LaneCategory(category string) Lane {
	return Lane{name: "category", category: strings.TrimSpace(strings.ToLower(category))}
}

func (l Lane) Category() string { return l.category }

func (l Lane) IsCategory() bool { return l.name == "category" }

// Key is the lane's cache-key form, e.g. "trending" or "category_fantasy".
func (l Lane) Key() string {
	if l.IsCategory() {
		return "category_" + l.category
	}
	return l.name
}

func (l Lane) String() string { return l.Key() }

// ParseLane maps a route parameter to a Lane. The category value is only
// consulted for the category lane and defaults to "fantasy" to keep the
// legacy route shape working.
func ParseLane(name, category string) (Lane, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "trending":
		return LaneTrending, nil
	case "new_arrivals", "new-arrivals", "newarrivals":
		return LaneNewArrivals, nil
	case "editors_pick", "editors-pick", "editorspick":
		return LaneEditorsPick, nil
	case "category", "fantasy":
		if strings.TrimSpace(category) == "" {
			category = "fantasy"
		}
		return LaneCategory(category), nil
	default:
		return Lane{}, fmt.Errorf("unknown lane %q", name)
	}
}
