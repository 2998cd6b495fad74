package gamification

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)
	require.NotEmpty(t, c.Badges)

	first, ok := c.Find("first-workout")
	require.True(t, ok)
	require.Equal(t, BadgeWorkouts, first.Category)
	require.Equal(t, int64(1), first.Threshold)

	week, ok := c.Find("streak-7")
	require.True(t, ok)
	require.Equal(t, BadgeStreak, week.Category)
	require.Equal(t, int64(7), week.Threshold)

	_, ok = c.Find("no-such-badge")
	require.False(t, ok)
}

func TestLoadCatalogRejectsBadDefinitions(t *testing.T) {
	orig := rawCatalog
	defer func() { rawCatalog = orig }()

	cases := []struct {
		name string
		yaml string
	}{
		{"missing id", "badges:\n  - name: NoID\n    category: xp\n    threshold: 5\n"},
		{"duplicate id", "badges:\n  - id: a\n    category: xp\n    threshold: 5\n  - id: a\n    category: xp\n    threshold: 9\n"},
		{"zero threshold", "badges:\n  - id: a\n    category: xp\n    threshold: 0\n"},
		{"unknown category", "badges:\n  - id: a\n    category: distance\n    threshold: 5\n"},
		{"invalid yaml", "badges: [\n"},
	}
	for _, tc := range cases {
		rawCatalog = []byte(tc.yaml)
		_, err := LoadCatalog()
		require.Error(t, err, tc.name)
	}
}

func TestNewlyEarned(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	before := Totals{XP: 90, Workouts: 0, Streak: 0}
	after := Totals{XP: 150, Workouts: 1, Streak: 1}

	earned := c.NewlyEarned(before, after, nil)
	ids := make([]string, 0, len(earned))
	for _, b := range earned {
		ids = append(ids, b.ID)
	}
	require.ElementsMatch(t, []string{"first-workout", "xp-100"}, ids)
}

func TestNewlyEarnedSkipsOwned(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	before := Totals{XP: 90, Workouts: 0}
	after := Totals{XP: 150, Workouts: 1}
	owned := map[string]bool{"first-workout": true}

	earned := c.NewlyEarned(before, after, owned)
	require.Len(t, earned, 1)
	require.Equal(t, "xp-100", earned[0].ID)
}

func TestNewlyEarnedRequiresCrossing(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	// Already past every threshold in range; nothing new is crossed.
	before := Totals{XP: 150, Workouts: 2, Streak: 4}
	after := Totals{XP: 180, Workouts: 3, Streak: 5}
	require.Empty(t, c.NewlyEarned(before, after, nil))
}

func TestNewlyEarnedStreakThreshold(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	earned := c.NewlyEarned(Totals{Streak: 6, Workouts: 20, XP: 2000}, Totals{Streak: 7, Workouts: 21, XP: 2050}, nil)
	require.Len(t, earned, 1)
	require.Equal(t, "streak-7", earned[0].ID)
}
