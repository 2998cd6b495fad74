package gamification

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

type BadgeCategory string

const (
	BadgeXP       BadgeCategory = "xp"
	BadgeStreak   BadgeCategory = "streak"
	BadgeWorkouts BadgeCategory = "workouts"
)

type Badge struct {
	ID          string        `yaml:"id" json:"id"`
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description"`
	Icon        string        `yaml:"icon" json:"icon"`
	Category    BadgeCategory `yaml:"category" json:"category"`
	Threshold   int64         `yaml:"threshold" json:"threshold"`
}

type Catalog struct {
	Badges []Badge `yaml:"badges"`
}

//go:embed catalog.yaml
var rawCatalog []byte

// LoadCatalog parses the embedded badge definitions. Callers treat a
// load failure as "no badges", never as a reason to block XP awards.
func LoadCatalog() (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(rawCatalog, &c); err != nil {
		return nil, fmt.Errorf("parse badge catalog: %w", err)
	}
	seen := make(map[string]bool, len(c.Badges))
	for _, b := range c.Badges {
		if b.ID == "" {
			return nil, fmt.Errorf("badge catalog: badge %q has no id", b.Name)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("badge catalog: duplicate id %q", b.ID)
		}
		seen[b.ID] = true
		if b.Threshold <= 0 {
			return nil, fmt.Errorf("badge catalog: badge %q threshold must be positive", b.ID)
		}
		switch b.Category {
		case BadgeXP, BadgeStreak, BadgeWorkouts:
		default:
			return nil, fmt.Errorf("badge catalog: badge %q has unknown category %q", b.ID, b.Category)
		}
	}
	return &c, nil
}

// Totals are the running counters badge thresholds are checked against.
type Totals struct {
	XP       int64
	Workouts int64
	Streak   int
}

// NewlyEarned returns badges whose threshold was crossed between the
// two snapshots, skipping any the user already owns. A badge earned
// once stays earned; crossing a threshold again never re-awards.
func (c *Catalog) NewlyEarned(before, after Totals, owned map[string]bool) []Badge {
	var out []Badge
	for _, b := range c.Badges {
		if owned[b.ID] {
			continue
		}
		var prev, next int64
		switch b.Category {
		case BadgeXP:
			prev, next = before.XP, after.XP
		case BadgeWorkouts:
			prev, next = before.Workouts, after.Workouts
		case BadgeStreak:
			prev, next = int64(before.Streak), int64(after.Streak)
		default:
			continue
		}
		if prev < b.Threshold && b.Threshold <= next {
			out = append(out, b)
		}
	}
	return out
}

// Find returns the badge with the given id.
func (c *Catalog) Find(id string) (Badge, bool) {
	for _, b := range c.Badges {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}
