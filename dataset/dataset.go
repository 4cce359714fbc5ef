// Package dataset lists fingerprint images in a directory grouped by person.
// A file named "<person>_<sample>.<ext>" belongs to <person>.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
)

// Extensions accepted by Load, matching the decoders registered in the
// skeleton package.
var Extensions = []string{".bmp", ".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff", ".pgm", ".pbm", ".wsq"}

// Sample is one image file of a person.
type Sample struct {
	Person string
	Path   string
}

// Set holds samples grouped per person. People are sorted by id and each
// person's samples by file name, so runs are reproducible.
type Set struct {
	People  []string
	Samples map[string][]Sample
}

// Len returns the total number of samples.
func (s Set) Len() int {
	n := 0
	for _, list := range s.Samples {
		n += len(list)
	}
	return n
}

// All returns every sample, person by person.
func (s Set) All() []Sample {
	out := make([]Sample, 0, s.Len())
	for _, p := range s.People {
		out = append(out, s.Samples[p]...)
	}
	return out
}

// Load scans dir (not recursively).
func Load(dir string) (Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Set{}, fmt.Errorf("read dataset %s: %w", dir, err)
	}

	set := Set{Samples: map[string][]Sample{}}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !slices.Contains(Extensions, strings.ToLower(filepath.Ext(name))) {
			continue
		}
		person := PersonID(name)
		if _, ok := set.Samples[person]; !ok {
			set.People = append(set.People, person)
		}
		set.Samples[person] = append(set.Samples[person], Sample{
			Person: person,
			Path:   filepath.Join(dir, name),
		})
	}

	slices.Sort(set.People)
	for _, list := range set.Samples {
		slices.SortFunc(list, func(a, b Sample) int { return strings.Compare(a.Path, b.Path) })
	}
	return set, nil
}

// PersonID is the part of a file name before the first underscore, or the
// name without extension when there is none.
func PersonID(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.IndexByte(base, '_'); i >= 0 {
		return base[:i]
	}
	return base
}
