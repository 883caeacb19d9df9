// Package points holds the directory of infobus.eu cities and stops the bot
// knows about, with alias based lookup.
package points

import (
	"errors"
	"sort"
	"strings"
)

// ErrNotFound is returned when a name or id does not identify exactly one point.
var ErrNotFound = errors.New("point not found")

// Point is a single infobus.eu city or stop.
type Point struct {
	Key       string
	ID        string
	Canonical string
	Aliases   []string
}

// Builtin returns the points shipped with the bot.
func Builtin() []Point {
	return []Point{
		{
			Key:       "vilnius",
			ID:        "78",
			Canonical: "Vilnius",
			Aliases:   []string{"vilnius", "вильнюс", "vilnyus", "wilno", "vilnius lt", "lt vilnius"},
		},
		{
			Key:       "minsk",
			ID:        "2",
			Canonical: "Minsk",
			Aliases:   []string{"minsk", "минск", "mensk", "by minsk"},
		},
		{
			Key:       "vilnius_airport",
			ID:        "2376",
			Canonical: "Vilnius Airport",
			Aliases: []string{
				"vilnius airport", "аэропорт вильнюс", "ltu", "vno",
				"vilnius ltu", "аэропорт vilnius",
			},
		},
	}
}

type aliasEntry struct {
	alias string
	key   string
}

// Directory indexes points by key, id and alias. It is immutable after New.
type Directory struct {
	order   []string
	byKey   map[string]Point
	byID    map[string]string
	aliases []aliasEntry
	byAlias map[string]string
}

// New builds a directory from the built-in points followed by extra.
// An extra point with an existing key replaces the built-in one.
func New(extra ...Point) *Directory {
	d := &Directory{
		byKey:   make(map[string]Point),
		byID:    make(map[string]string),
		byAlias: make(map[string]string),
	}

	for _, p := range append(Builtin(), extra...) {
		if p.Key == "" {
			p.Key = Normalize(p.Canonical)
		}
		if _, exists := d.byKey[p.Key]; !exists {
			d.order = append(d.order, p.Key)
		}
		d.byKey[p.Key] = p
	}

	// a later point takes over a shared alias in both lookups
	aliasAt := make(map[string]int)
	for _, key := range d.order {
		p := d.byKey[key]
		d.byID[strings.TrimSpace(p.ID)] = key
		// the canonical name counts as an alias too
		for _, a := range append(append([]string{}, p.Aliases...), p.Canonical) {
			n := Normalize(a)
			if n == "" {
				continue
			}
			if i, seen := aliasAt[n]; seen {
				d.aliases[i].key = key
			} else {
				aliasAt[n] = len(d.aliases)
				d.aliases = append(d.aliases, aliasEntry{alias: n, key: key})
			}
			d.byAlias[n] = key
		}
	}

	return d
}

// Normalize trims and lower-cases q.
func Normalize(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// Resolve looks a point up by name or alias. An exact alias match wins;
// otherwise a substring match is accepted if it selects a single point.
// Numeric ids are not accepted here, see ResolveNameOrID.
func (d *Directory) Resolve(name string) (Point, error) {
	n := Normalize(name)
	if n == "" {
		return Point{}, ErrNotFound
	}
	if key, ok := d.byAlias[n]; ok {
		return d.byKey[key], nil
	}

	var match string
	for _, a := range d.aliases {
		if !strings.Contains(a.alias, n) {
			continue
		}
		if match != "" && match != a.key {
			return Point{}, ErrNotFound
		}
		match = a.key
	}
	if match == "" {
		return Point{}, ErrNotFound
	}
	return d.byKey[match], nil
}

// ResolveNameOrID accepts either a numeric point id or anything Resolve accepts.
// An unknown numeric id is not found.
func (d *Directory) ResolveNameOrID(token string) (Point, error) {
	t := strings.TrimSpace(token)
	if isDigits(t) {
		key, ok := d.byID[t]
		if !ok {
			return Point{}, ErrNotFound
		}
		return d.byKey[key], nil
	}
	return d.Resolve(t)
}

// CanonicalByID returns the canonical name of the point with the given id.
func (d *Directory) CanonicalByID(id string) (string, bool) {
	key, ok := d.byID[strings.TrimSpace(id)]
	if !ok {
		return "", false
	}
	return d.byKey[key].Canonical, true
}

// List returns every point in registration order.
func (d *Directory) List() []Point {
	out := make([]Point, 0, len(d.order))
	for _, key := range d.order {
		out = append(out, d.byKey[key])
	}
	return out
}

// Search returns points whose key, canonical name or any alias contains q.
func (d *Directory) Search(q string) []Point {
	n := Normalize(q)
	var out []Point
	for _, key := range d.order {
		p := d.byKey[key]
		if strings.Contains(key, n) || strings.Contains(strings.ToLower(p.Canonical), n) {
			out = append(out, p)
			continue
		}
		for _, a := range p.Aliases {
			if strings.Contains(strings.ToLower(a), n) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// SortForDisplay orders points by lower-cased name, then by id.
func SortForDisplay(ps []Point) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := strings.ToLower(ps[i].Canonical), strings.ToLower(ps[j].Canonical)
		if a != b {
			return a < b
		}
		return ps[i].ID < ps[j].ID
	})
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
