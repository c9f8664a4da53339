// Package catalog derives the category and instructor taxonomies the
// destination imports alongside meetings.
package catalog

import (
	"strconv"
	"strings"

	"zoomsync/internal/pipeline"
)

const (
	IDPrefix = "zc_"

	CustomCategoryID   = "zc_1"
	CustomCategoryName = "Custom category"

	NoInstructor = "No instructor"
)

// Category is one destination taxonomy term.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CategoryID is "zc_" + the lowercased name with spaces as underscores.
func CategoryID(name string) string {
	return IDPrefix + strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// Categories lists the distinct tracked categories in record order, led by
// the fixed custom category. Records without a category are ignored. A name
// whose id is already taken ("1", or "Mind Body" after "mind body") gets a
// "_2", "_3", ... suffix so ids stay unique.
func Categories(records []pipeline.Record) []Category {
	out := []Category{{ID: CustomCategoryID, Name: CustomCategoryName}}
	used := map[string]struct{}{CustomCategoryID: {}}
	for _, name := range distinct(records, pipeline.Record.Category) {
		base := CategoryID(name)
		id := base
		for n := 2; ; n++ {
			if _, taken := used[id]; !taken {
				break
			}
			id = base + "_" + strconv.Itoa(n)
		}
		used[id] = struct{}{}
		out = append(out, Category{ID: id, Name: name})
	}
	return out
}

// Instructors lists the distinct tracked instructor names in record order,
// or just NoInstructor when none is set.
func Instructors(records []pipeline.Record) []string {
	out := distinct(records, pipeline.Record.Instructor)
	if len(out) == 0 {
		return []string{NoInstructor}
	}
	return out
}

func distinct(records []pipeline.Record, field func(pipeline.Record) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		v := strings.TrimSpace(field(r))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
