package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "Loads a city"
seed:
  cities:
    - { slug: sf, name: San Francisco }
steps:
  - intent: load_city
    city: sf
  - settle: all
assertions:
  - { type: city, city: sf }
`

func TestLoadScenario_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Seed.Cities, 1)
	assert.Equal(t, "San Francisco", s.Seed.Cities[0].Name)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, "load_city", s.Steps[0].Intent)
	assert.Equal(t, SettleAll, s.Steps[1].Settle)
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, AssertCity, s.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	src := minimalScenario + "assertion: []\n"
	_, err := ParseScenario([]byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	const head = `
name: broken
description: "x"
seed:
  cities:
    - { slug: sf, name: San Francisco }
`
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing name",
			src:  "description: x\nseed: {cities: [{slug: sf}]}\nsteps: [{settle: all}]\n",
			want: "name is required",
		},
		{
			name: "no steps",
			src:  head,
			want: "steps list is required",
		},
		{
			name: "no cities",
			src:  "name: x\ndescription: x\nsteps: [{settle: all}]\n",
			want: "seed.cities is required",
		},
		{
			name: "two actions in one step",
			src:  head + "steps:\n  - intent: reload\n    settle: all\n",
			want: "exactly one action is required, found 2",
		},
		{
			name: "empty step",
			src:  head + "steps:\n  - city: sf\n",
			want: "exactly one action is required, found 0",
		},
		{
			name: "unknown intent",
			src:  head + "steps:\n  - intent: teleport\n",
			want: `unknown intent kind "teleport"`,
		},
		{
			name: "bad vote value",
			src:  head + "steps:\n  - intent: vote_post\n    post: p1\n    value: sideways\n",
			want: "invalid vote value",
		},
		{
			name: "unknown operation",
			src:  head + "steps:\n  - settle: posts.upsert\n",
			want: `unknown operation "posts.upsert"`,
		},
		{
			name: "fail all",
			src:  head + "steps:\n  - fail: all\n",
			want: `unknown operation "all"`,
		},
		{
			name: "reject without intent",
			src:  head + "steps:\n  - settle: any\n    reject: NO_CITY\n",
			want: "reject is only valid on intents",
		},
		{
			name: "unknown remote action",
			src:  head + "steps:\n  - remote: { action: explode }\n",
			want: `unknown action "explode"`,
		},
		{
			name: "notify unknown table",
			src:  head + "steps:\n  - notify: { table: cities, kind: insert }\n",
			want: `unknown table "cities"`,
		},
		{
			name: "notify update without old",
			src:  head + "steps:\n  - notify: { table: post_votes, kind: update, post: p1, device: d2, value: up }\n",
			want: "old:",
		},
		{
			name: "unknown assertion",
			src:  head + "steps:\n  - expect: [{ type: vibes }]\n",
			want: `unknown assertion type "vibes"`,
		},
		{
			name: "status needs a status",
			src:  head + "steps:\n  - settle: any\nassertions:\n  - { type: status, post: p1 }\n",
			want: "assertions[0]",
		},
		{
			name: "seed comment on unknown post",
			src:  head + "  comments:\n    - { id: c1, post: p7, body: x }\nsteps:\n  - settle: any\n",
			want: `unknown post "p7"`,
		},
		{
			name: "seed post in unknown city",
			src:  head + "  posts:\n    - { id: p1, city: nyc, body: x }\nsteps:\n  - settle: any\n",
			want: `unknown city "nyc"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDir_SortedAndFiltered(t *testing.T) {
	all, err := LoadDir("testdata/scenarios", "")
	require.NoError(t, err)
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.NotEqual(t, all[i-1].Name, all[i].Name)
	}

	votes, err := LoadDir("testdata/scenarios", "vote")
	require.NoError(t, err)
	require.NotEmpty(t, votes)
	for _, s := range votes {
		assert.Contains(t, s.Name, "vote")
	}
	assert.Less(t, len(votes), len(all))
}

func TestLoadDir_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(minimalScenario), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(minimalScenario), 0644))

	_, err := LoadDir(dir, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario "minimal" defined in both`)
}

func TestLoadDir_Empty(t *testing.T) {
	got, err := LoadDir(t.TempDir(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
