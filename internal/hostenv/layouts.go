package hostenv

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"mazeplan.ai/internal/planner/grid"
)

//go:embed layouts/*.lay
var builtin embed.FS

// Layouts lists the built-in layout names.
func Layouts() []string {
	entries, _ := builtin.ReadDir("layouts")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".lay"))
	}
	sort.Strings(names)
	return names
}

// LoadLayout resolves a built-in name first, then a file path.
func LoadLayout(nameOrPath string) (grid.Layout, error) {
	raw, err := builtin.ReadFile(path.Join("layouts", nameOrPath+".lay"))
	if err != nil {
		raw, err = os.ReadFile(nameOrPath)
		if err != nil {
			return grid.Layout{}, fmt.Errorf("layout %q: not built in (%s) and %w", nameOrPath, strings.Join(Layouts(), ", "), err)
		}
	}
	return grid.ParseLayout(string(raw))
}
