package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	for _, a := range Actions {
		got, err := ParseAction(string(a))
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}

	got, err := ParseAction("list")
	require.NoError(t, err)
	assert.Equal(t, ActionListApps, got)

	_, err = ParseAction("reboot")
	assert.Error(t, err)
}

func TestProcessIDDecodesNumberAndString(t *testing.T) {
	var req ControlRequest
	require.NoError(t, json.Unmarshal([]byte(`{"node_id":"s1","action":"restart","pm_id":3}`), &req))
	assert.Equal(t, ProcessID("3"), req.PMID)

	require.NoError(t, json.Unmarshal([]byte(`{"node_id":"s1","action":"restart","pm_id":"web"}`), &req))
	assert.Equal(t, ProcessID("web"), req.PMID)

	req = ControlRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"node_id":"s1","action":"list_apps","pm_id":null}`), &req))
	assert.Equal(t, ProcessID(""), req.PMID)
}

func TestCommandJSONKeepsNumericIDs(t *testing.T) {
	b, err := json.Marshal(Command{Action: ActionRestart, PMID: "3"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"restart","pm_id":3}`, string(b))

	b, err = json.Marshal(Command{Action: ActionListApps})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"list_apps"}`, string(b))
}

func TestCommandValidate(t *testing.T) {
	assert.NoError(t, Command{Action: ActionListApps}.Validate())
	assert.NoError(t, Command{Action: ActionLogs, PMID: "0"}.Validate())
	assert.Error(t, Command{Action: ActionStop}.Validate())
	assert.Error(t, Command{Action: "shutdown", PMID: "1"}.Validate())
}
