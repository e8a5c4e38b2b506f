package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/config"
	"github.com/Ramsey-B/sage/pkg/processor"
)

func TestReadJSON(t *testing.T) {
	input := `[{"participant":{"email":"ann@acme.com","name":"Ann Lee"},"enrichment":{"confidence":0.8}}]`

	t.Run("stdin", func(t *testing.T) {
		var requests []processor.MatchRequest
		require.NoError(t, readJSON("-", strings.NewReader(input), &requests))
		require.Len(t, requests, 1)
		assert.Equal(t, "ann@acme.com", requests[0].Participant.Email)
		require.NotNil(t, requests[0].Enrichment)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "in.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"lead_id":"lead-1"}]`), 0o600))

		var requests []processor.ReconcileRequest
		require.NoError(t, readJSON(path, nil, &requests))
		require.Len(t, requests, 1)
		assert.Equal(t, "lead-1", requests[0].LeadID)
		assert.Nil(t, requests[0].Meeting)
	})

	t.Run("malformed", func(t *testing.T) {
		var requests []processor.MatchRequest
		assert.Error(t, readJSON("-", strings.NewReader("{"), &requests))
	})

	t.Run("missing file", func(t *testing.T) {
		var requests []processor.MatchRequest
		assert.Error(t, readJSON(filepath.Join(t.TempDir(), "nope.json"), nil, &requests))
	})
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, reconcileLine{LeadID: "lead-1", Queued: 2}))
	assert.JSONEq(t, `{"lead_id":"lead-1","auto_resolved":0,"queued":2,"sync_queued":false}`, buf.String())
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(&config.Config{AppName: "sage", LogLevel: "debug", PrettyLogs: true})
	assert.NoError(t, err)

	_, err = newLogger(&config.Config{AppName: "sage", LogLevel: "chatty"})
	assert.Error(t, err)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "sweep", "match", "reconcile"})
}
