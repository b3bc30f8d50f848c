// Package library holds themed pools of candidate pseudonyms. A library is
// loaded once per run; afterwards only the used/reserved markers move.
// Draws are two-phase: Draw reserves a candidate, Commit marks it used once
// the assignment persisted, Release puts it back when it did not.
package library

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/voilenlp/voile/model"
	"gopkg.in/yaml.v3"
)

//go:embed themes/*.yaml
var themesFS embed.FS

// PoolKey identifies one candidate pool within a theme
type PoolKey string

const (
	PoolFirstMale    PoolKey = "first_male"
	PoolFirstFemale  PoolKey = "first_female"
	PoolFirstNeutral PoolKey = "first_neutral"
	PoolLast         PoolKey = "last"
	PoolLocation     PoolKey = "location"
	PoolOrg          PoolKey = "org"
)

var (
	// ErrLibraryExhausted is returned when no candidate satisfies the
	// exclusion and gender constraints. It is surfaced per entity, never
	// silently degraded into a non-unique pseudonym.
	ErrLibraryExhausted = errors.New("pseudonym library exhausted")
	// ErrUnknownTheme is returned for a theme not present in the library set
	ErrUnknownTheme = errors.New("unknown theme")
)

type themeFile struct {
	Theme      string `yaml:"theme"`
	FirstNames struct {
		Male    []string `yaml:"male"`
		Female  []string `yaml:"female"`
		Neutral []string `yaml:"neutral"`
	} `yaml:"first_names"`
	LastNames     []string `yaml:"last_names"`
	Locations     []string `yaml:"locations"`
	Organizations []string `yaml:"organizations"`
}

type pool struct {
	values   []string
	used     map[string]bool
	reserved map[string]bool
}

func newPool(values []string) *pool {
	return &pool{
		values:   values,
		used:     make(map[string]bool),
		reserved: make(map[string]bool),
	}
}

func (p *pool) draw(exclude map[string]bool) (string, bool) {
	for _, v := range p.values {
		if p.used[v] || p.reserved[v] || exclude[v] {
			continue
		}
		p.reserved[v] = true
		return v, true
	}
	return "", false
}

// Library is an in-memory set of candidate pools for one theme
type Library struct {
	Theme string

	pools        map[PoolKey]*pool
	reservations map[string]PoolKey
}

// Load reads a theme library from a YAML reader
func Load(r io.Reader) (*Library, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read theme: %w", err)
	}

	var tf themeFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse theme: %w", err)
	}
	if tf.Theme == "" {
		return nil, fmt.Errorf("theme file is missing a theme name")
	}

	return &Library{
		Theme: tf.Theme,
		pools: map[PoolKey]*pool{
			PoolFirstMale:    newPool(tf.FirstNames.Male),
			PoolFirstFemale:  newPool(tf.FirstNames.Female),
			PoolFirstNeutral: newPool(tf.FirstNames.Neutral),
			PoolLast:         newPool(tf.LastNames),
			PoolLocation:     newPool(tf.Locations),
			PoolOrg:          newPool(tf.Organizations),
		},
		reservations: make(map[string]PoolKey),
	}, nil
}

// LoadFile reads a theme library from a YAML file on disk
func LoadFile(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open theme file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// LoadTheme loads one of the embedded themes by name
func LoadTheme(theme string) (*Library, error) {
	f, err := themesFS.Open("themes/" + theme + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTheme, theme)
	}
	defer f.Close()
	return Load(f)
}

// Themes lists the embedded theme names
func Themes() []string {
	entries, err := fs.ReadDir(themesFS, "themes")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Draw reserves an unused candidate from the given pool, skipping every
// value in exclude. The reservation is held until Commit or Release.
func (l *Library) Draw(key PoolKey, exclude map[string]bool) (string, error) {
	p, ok := l.pools[key]
	if !ok {
		return "", fmt.Errorf("unknown pool %q", key)
	}
	v, ok := p.draw(exclude)
	if !ok {
		return "", fmt.Errorf("%w: pool %s of theme %s", ErrLibraryExhausted, key, l.Theme)
	}
	l.reservations[v] = key
	return v, nil
}

// DrawFirst reserves a first-name candidate respecting the gender bucket.
// A known gender draws from its own pool first and falls back to the
// neutral pool; the opposite gendered pool is never used. Unknown gender
// draws from the combined pools.
func (l *Library) DrawFirst(gender model.Gender, exclude map[string]bool) (string, error) {
	var order []PoolKey
	switch gender {
	case model.GenderFemale:
		order = []PoolKey{PoolFirstFemale, PoolFirstNeutral}
	case model.GenderMale:
		order = []PoolKey{PoolFirstMale, PoolFirstNeutral}
	default:
		order = []PoolKey{PoolFirstNeutral, PoolFirstFemale, PoolFirstMale}
	}

	for _, key := range order {
		v, err := l.Draw(key, exclude)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrLibraryExhausted) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: no first name available for gender %q in theme %s", ErrLibraryExhausted, gender, l.Theme)
}

// Commit marks a reserved candidate as used
func (l *Library) Commit(value string) {
	key, ok := l.reservations[value]
	if !ok {
		return
	}
	delete(l.reservations, value)
	p := l.pools[key]
	delete(p.reserved, value)
	p.used[value] = true
}

// Release returns a reserved candidate to the available pool. Any draw not
// followed by a successful persist must be released.
func (l *Library) Release(value string) {
	key, ok := l.reservations[value]
	if !ok {
		return
	}
	delete(l.reservations, value)
	delete(l.pools[key].reserved, value)
}

// ReleaseAll returns every outstanding reservation to its pool. Called when
// a session is aborted so pool sizes match the session start.
func (l *Library) ReleaseAll() {
	for value, key := range l.reservations {
		delete(l.pools[key].reserved, value)
		delete(l.reservations, value)
	}
}

// Available returns the number of drawable values left in a pool
func (l *Library) Available(key PoolKey) int {
	p, ok := l.pools[key]
	if !ok {
		return 0
	}
	n := 0
	for _, v := range p.values {
		if !p.used[v] && !p.reserved[v] {
			n++
		}
	}
	return n
}

// Usage returns the used fraction of a pool in [0, 1], a read-only
// diagnostic that never drives selection order.
func (l *Library) Usage(key PoolKey) float64 {
	p, ok := l.pools[key]
	if !ok || len(p.values) == 0 {
		return 0
	}
	return float64(len(p.used)) / float64(len(p.values))
}
