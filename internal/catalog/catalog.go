// Package catalog holds the portfolio projects shown on the site.
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/agleyzer/reelserver/internal/media"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// DefaultRelated is how many related projects a detail view lists.
const DefaultRelated = 3

// Project is one portfolio entry.
type Project struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	VideoID      string   `json:"video_id"`
	Categories   []string `json:"categories"`
	Technologies []string `json:"technologies"`
	Date         string   `json:"date,omitempty"`
	Client       string   `json:"client,omitempty"`
	Portrait     bool     `json:"is_portrait"`

	// Duration is the running time in seconds, used for playlist entries.
	// Zero means unknown.
	Duration float64 `json:"duration,omitempty"`
}

// Catalog is a concurrency-safe, ordered set of projects.
type Catalog struct {
	mu       sync.RWMutex
	projects []Project
	byID     map[string]int
}

// New builds a catalog from projects, rejecting empty or duplicate ids.
// A project without a video id plays the video named by its own id.
func New(projects []Project) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(projects); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads a JSON array of projects from path.
func Load(fs afero.Fs, path string) (*Catalog, error) {
	projects, err := readFile(fs, path)
	if err != nil {
		return nil, err
	}
	return New(projects)
}

// FromLibrary derives one project per video in the media library.
func FromLibrary(lib *media.Library) (*Catalog, error) {
	assets, err := lib.List()
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}

	projects := lo.Map(assets, func(a media.Asset, _ int) Project {
		return Project{
			ID:      a.ID,
			Title:   "Edit " + a.ID,
			VideoID: a.ID,
			Date:    a.ModTime.Format("2006-01-02"),
		}
	})

	return New(projects)
}

func readFile(fs afero.Fs, path string) ([]Project, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var projects []Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("parse catalog %q: %w", path, err)
	}
	return projects, nil
}

// Replace swaps the catalog contents. On error the old contents are kept.
func (c *Catalog) Replace(projects []Project) error {
	byID := make(map[string]int, len(projects))
	normalized := make([]Project, len(projects))

	for i, p := range projects {
		if p.ID == "" {
			return fmt.Errorf("project %d has no id", i)
		}
		if _, dup := byID[p.ID]; dup {
			return fmt.Errorf("duplicate project id %q", p.ID)
		}
		if p.VideoID == "" {
			p.VideoID = p.ID
		}
		if p.Categories == nil {
			p.Categories = []string{}
		}
		if p.Technologies == nil {
			p.Technologies = []string{}
		}
		byID[p.ID] = i
		normalized[i] = p
	}

	c.mu.Lock()
	c.projects = normalized
	c.byID = byID
	c.mu.Unlock()

	return nil
}

// All returns a copy of every project in catalog order.
func (c *Catalog) All() []Project {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Project, len(c.projects))
	copy(out, c.projects)
	return out
}

// Len returns the number of projects.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.projects)
}

// Get looks a project up by id.
func (c *Catalog) Get(id string) (Project, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.byID[id]
	if !ok {
		return Project{}, false
	}
	return c.projects[i], true
}

// Filter returns the projects carrying every one of the given categories
// and every one of the given technologies. Empty filters match everything.
func (c *Catalog) Filter(categories, technologies []string) []Project {
	return lo.Filter(c.All(), func(p Project, _ int) bool {
		return lo.Every(p.Categories, categories) && lo.Every(p.Technologies, technologies)
	})
}

// Related ranks the other projects by overlap with id: two points per
// shared category, one per shared technology. Ties keep catalog order.
func (c *Catalog) Related(id string, max int) []Project {
	current, ok := c.Get(id)
	if !ok {
		return nil
	}
	if max <= 0 {
		max = DefaultRelated
	}

	type scored struct {
		project Project
		score   int
	}

	candidates := lo.FilterMap(c.All(), func(p Project, _ int) (scored, bool) {
		if p.ID == current.ID {
			return scored{}, false
		}
		score := 2*len(lo.Intersect(p.Categories, current.Categories)) +
			len(lo.Intersect(p.Technologies, current.Technologies))
		return scored{project: p, score: score}, true
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	return lo.Map(candidates, func(s scored, _ int) Project { return s.project })
}

// Categories returns every category used in the catalog, sorted.
func (c *Catalog) Categories() []string {
	return uniqueSorted(lo.FlatMap(c.All(), func(p Project, _ int) []string { return p.Categories }))
}

// Technologies returns every technology used in the catalog, sorted.
func (c *Catalog) Technologies() []string {
	return uniqueSorted(lo.FlatMap(c.All(), func(p Project, _ int) []string { return p.Technologies }))
}

func uniqueSorted(values []string) []string {
	out := lo.Uniq(values)
	sort.Strings(out)
	return out
}
