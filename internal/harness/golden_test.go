package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/engine"
	"github.com/roach88/murmur/internal/ir"
)

func TestRunWithGolden(t *testing.T) {
	// To regenerate: go test ./internal/harness -run TestRunWithGolden -update
	for _, name := range []string{
		"vote_toggle",
		"create_post_ack_first",
		"comment_thread",
	} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_Format(t *testing.T) {
	r := NewResult()
	r.AddTrace(1, "intent", "reload")
	r.AddTrace(2, "hold_changes", "")
	r.View = &engine.View{
		City: &ir.City{ID: 1, Slug: "la", Name: "Los Angeles"},
		Mode: ir.ModeHot,
		Posts: []engine.PostView{
			{ID: "p1", Status: ir.StatusConfirmed, Body: "hi", Tally: ir.Tally{Ups: 2, Downs: 1}},
		},
	}

	got, err := Snapshot("format", r)
	require.NoError(t, err)

	want := "scenario format\n" +
		"step 1 intent reload\n" +
		"step 2 hold_changes\n" +
		"--- view\n" +
		"city la \"Los Angeles\"\n" +
		"mode hot\n" +
		"compose \"\"\n" +
		"post p1 confirmed +2/-1 \"hi\"\n"
	assert.Equal(t, want, string(got))
}

func TestSnapshot_NoView(t *testing.T) {
	got, err := Snapshot("empty", NewResult())
	require.NoError(t, err)
	assert.Equal(t, "scenario empty\n--- view\n", string(got))
}
