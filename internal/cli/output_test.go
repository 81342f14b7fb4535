package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/engine"
	"github.com/roach88/murmur/internal/ir"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"device_id": "d1"})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "murmur.cue"}
	err := formatter.Error(CodeConfig, "invalid config", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_CONFIG", resp.Error.Code)
	assert.Equal(t, "invalid config", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			err := formatter.Error(CodeConfig, "invalid config", "ranking.hotWindow")
			require.NoError(t, err)
			assert.Contains(t, buf.String(), "Error [E_CONFIG]: invalid config")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: ranking.hotWindow")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func sampleCLIView() *engine.View {
	return &engine.View{
		City: &ir.City{ID: 1, Slug: "sf", Name: "San Francisco"},
		Mode: ir.ModeRecent,
		Posts: []engine.PostView{
			{ID: "p1", Status: ir.StatusConfirmed, Body: "hello", Tally: ir.Tally{Ups: 1}},
		},
	}
}

func TestOutputFormatter_ViewText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.View(sampleCLIView()))
	assert.Equal(t,
		"city sf \"San Francisco\"\nmode recent\ncompose \"\"\npost p1 confirmed +1/-0 \"hello\"\n",
		buf.String())
}

func TestOutputFormatter_ViewJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.View(sampleCLIView()))

	var resp struct {
		Status string      `json:"status"`
		Data   engine.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.ModeRecent, resp.Data.Mode)
	require.Len(t, resp.Data.Posts, 1)
	assert.Equal(t, "p1", resp.Data.Posts[0].ID)
}

func TestOutputFormatter_Problem(t *testing.T) {
	buf := &bytes.Buffer{}
	text := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, text.Problem(errors.New("usage: up <post>")))
	assert.Equal(t, "! usage: up <post>\n", buf.String())

	buf.Reset()
	js := &OutputFormatter{Format: "json", Writer: buf}
	require.NoError(t, js.Problem(errors.New("usage: up <post>")))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInput, resp.Error.Code)
	assert.Equal(t, "usage: up <post>", resp.Error.Message)
}

func TestOutputFormatter_EventFailed(t *testing.T) {
	in := engine.VotePost("p9", ir.VoteUp)
	rejected := engine.Event{Type: engine.EventTypeIntent, Intent: &in}
	rejectErr := &engine.RejectedError{Code: engine.ErrCodeUnknownEntity, Intent: in.Kind, ID: "p9"}

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, f.EventFailed(rejected, rejectErr))
		assert.Equal(t, "! "+rejectErr.Error()+"\n", buf.String())
	})

	t.Run("json rejection", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.EventFailed(rejected, fmt.Errorf("submit: %w", rejectErr)))

		var resp struct {
			Status string `json:"status"`
			Error  struct {
				Code    string       `json:"code"`
				Details IntentResult `json:"details"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, CodeRejected, resp.Error.Code)
		assert.Equal(t, IntentResult{Intent: in.Kind, Reject: engine.ErrCodeUnknownEntity, ID: "p9"}, resp.Error.Details)
	})

	t.Run("json failure", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.EventFailed(rejected, errEventFailed))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeEngine, resp.Error.Code)
		assert.Equal(t, map[string]any{"intent": string(in.Kind)}, resp.Error.Details)
	})
}

var errEventFailed = errors.New("post change carries <nil>")

func TestExitError(t *testing.T) {
	base := errors.New("disk full")

	plain := NewExitError(ExitCommandError, "bad path")
	assert.Equal(t, "bad path", plain.Error())
	assert.Nil(t, plain.Unwrap())

	wrapped := WrapExitError(ExitFailure, "failed to open database", base)
	assert.Equal(t, "failed to open database: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "x"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "x")), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}
