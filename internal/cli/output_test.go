package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/famshelf/internal/inventory"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(groupCreated{Code: "K7QM2ZXA"})
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   groupCreated `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "K7QM2ZXA", resp.Data.Code)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("NOT_FOUND", "no item in group K7QM2ZXA", nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "no item in group K7QM2ZXA", resp.Error.Message)
	assert.Nil(t, resp.Error.Details)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"field": "potency"}
	err := formatter.Error("VALIDATION_FAILED", "potency is required", details)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, map[string]interface{}{"field": "potency"}, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("Skipped.")
	require.NoError(t, err)
	assert.Equal(t, "Skipped.\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("DUPLICATE_FOUND", "Arnica 30C looks like an existing item", map[string]string{"existing": "item-1"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [DUPLICATE_FOUND]")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error("DUPLICATE_FOUND", "Arnica 30C looks like an existing item", map[string]string{"existing": "item-1"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Details:")
	assert.Contains(t, buf.String(), "item-1")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("no golden file for %s", "sync_basics")

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "no golden file for sync_basics")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitSuccess, 0)
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flags")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	cause := errors.New("disk full")
	wrapped := fmt.Errorf("items add: %w", WrapExitError(ExitFailure, "mutation refused", cause))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "items add: mutation refused: disk full", wrapped.Error())
}

func TestItemList_Text(t *testing.T) {
	assert.Equal(t, "No items.", itemList(nil).String())

	list := itemList{
		{ID: "item-1", Name: "Arnica", Potency: "30C", Company: "Boiron", Location: "Kitchen", SubLocation: "Drawer", Quantity: 2},
		{ID: "item-2", Name: "Belladonna", Potency: "200C", Company: "Hyland", Location: "Bathroom", Quantity: 1},
	}
	lines := strings.Split(list.String(), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "Kitchen / Drawer")
	assert.True(t, strings.HasSuffix(lines[2], "1"))
	// Columns line up.
	assert.Equal(t, strings.Index(lines[0], "NAME"), strings.Index(lines[1], "Arnica"))
}

func TestItemView_JSONKeepsItemFields(t *testing.T) {
	data, err := json.Marshal(itemView{inventory.Item{ID: "item-1", GroupID: "K7QM2ZXA", Name: "Arnica", Quantity: 3}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"groupId":"K7QM2ZXA"`)
	assert.Contains(t, string(data), `"quantity":3`)
	assert.NotContains(t, string(data), `"Item"`)
}
