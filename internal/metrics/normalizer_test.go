package metrics

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trueinterview/pkg/types"
)

func TestNormalize_PresenceKeepsInputOrder(t *testing.T) {
	snapshot := Normalize([]byte(`{"zoom": false, "cluely": true, "vscode": false}`))

	require.Equal(t, types.MetricsKindPresence, snapshot.Kind)
	assert.Equal(t, []types.AppPresence{
		{ProcessName: "zoom", IsRunning: false},
		{ProcessName: "cluely", IsRunning: true},
		{ProcessName: "vscode", IsRunning: false},
	}, snapshot.Presence)
	assert.Nil(t, snapshot.Processes)
}

func TestNormalize_LegacyListSortedByCPU(t *testing.T) {
	raw := `[
		{"processName": "idle", "cpu": 0.04, "memory": 1048576},
		{"name": "chrome", "cpu": 42.26, "memory": 524288000},
		{"processName": "node", "cpu": 12.5}
	]`
	snapshot := Normalize([]byte(raw))

	require.Equal(t, types.MetricsKindNumeric, snapshot.Kind)
	require.Len(t, snapshot.Processes, 3)

	assert.Equal(t, "chrome", snapshot.Processes[0].ProcessName)
	assert.Equal(t, 42.3, snapshot.Processes[0].CPU)
	assert.Equal(t, 500.0, snapshot.Processes[0].MemoryMB)

	assert.Equal(t, "node", snapshot.Processes[1].ProcessName)
	assert.Equal(t, 0.0, snapshot.Processes[1].Memory)

	assert.Equal(t, "idle", snapshot.Processes[2].ProcessName)
	assert.Equal(t, 0.0, snapshot.Processes[2].CPU)
	assert.Equal(t, 1.0, snapshot.Processes[2].MemoryMB)
}

func TestNormalize_ProcessesWrapper(t *testing.T) {
	snapshot := Normalize([]byte(`{"processes": [{"name": "python3", "cpu": 3, "memoryMB": 88.4}]}`))

	require.Equal(t, types.MetricsKindNumeric, snapshot.Kind)
	require.Len(t, snapshot.Processes, 1)
	assert.Equal(t, "python3", snapshot.Processes[0].ProcessName)
	assert.Equal(t, 3.0, snapshot.Processes[0].CPU)
	assert.Equal(t, 88.4, snapshot.Processes[0].MemoryMB, "memoryMB passes through when memory is absent")
}

func TestNormalize_DropsNamelessEntries(t *testing.T) {
	snapshot := Normalize([]byte(`[{"cpu": 99}, {"processName": ""}, "garbage", {"name": "vim", "cpu": "high"}]`))

	require.Len(t, snapshot.Processes, 1)
	assert.Equal(t, "vim", snapshot.Processes[0].ProcessName)
	assert.Equal(t, 0.0, snapshot.Processes[0].CPU, "non-numeric cpu reads as zero")
}

// FUNCTIONAL VALIDATION TEST: payload size is bounded regardless of report size
func TestNormalize_TruncatesToTopEntries(t *testing.T) {
	var items []string
	for i := 0; i < 40; i++ {
		items = append(items, fmt.Sprintf(`{"processName":"p%d","cpu":%d}`, i, i))
	}
	snapshot := Normalize([]byte("[" + strings.Join(items, ",") + "]"))

	require.Len(t, snapshot.Processes, MaxEntries)
	assert.Equal(t, "p39", snapshot.Processes[0].ProcessName)
	assert.Equal(t, "p25", snapshot.Processes[MaxEntries-1].ProcessName)

	var keys []string
	for i := 0; i < 20; i++ {
		keys = append(keys, fmt.Sprintf(`"app%02d":true`, i))
	}
	presence := Normalize([]byte("{" + strings.Join(keys, ",") + "}"))
	require.Len(t, presence.Presence, MaxEntries)
	assert.Equal(t, "app00", presence.Presence[0].ProcessName)
}

func TestNormalize_StableForEqualCPU(t *testing.T) {
	snapshot := Normalize([]byte(`[{"name":"a","cpu":1},{"name":"b","cpu":1},{"name":"c","cpu":1}]`))
	require.Len(t, snapshot.Processes, 3)
	assert.Equal(t, "a", snapshot.Processes[0].ProcessName)
	assert.Equal(t, "b", snapshot.Processes[1].ProcessName)
	assert.Equal(t, "c", snapshot.Processes[2].ProcessName)
}

func TestNormalize_MalformedIsEmpty(t *testing.T) {
	cases := map[string]string{
		"empty":           ``,
		"whitespace":      `   `,
		"empty object":    `{}`,
		"empty list":      `[]`,
		"number":          `42`,
		"string":          `"cluely"`,
		"null":            `null`,
		"broken json":     `{"cluely": tru`,
		"mixed map":       `{"cluely": true, "cpu": 3}`,
		"bad wrapper":     `{"processes": "many"}`,
		"empty wrapper":   `{"processes": []}`,
		"nameless list":   `[{"cpu": 1}]`,
		"truncated array": `[{"name":"a"`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			snapshot := Normalize([]byte(raw))
			require.NotNil(t, snapshot)
			assert.Equal(t, types.MetricsKindEmpty, snapshot.Kind)
			assert.Equal(t, 0, snapshot.Len())

			encoded, err := json.Marshal(snapshot)
			require.NoError(t, err)
			assert.JSONEq(t, `[]`, string(encoded))
		})
	}
}

func TestParse_Kinds(t *testing.T) {
	assert.Equal(t, PresenceMap, Parse([]byte(`{"cluely": true}`)).Kind)
	assert.Equal(t, LegacyProcessList, Parse([]byte(`[{"name":"x"}]`)).Kind)
	assert.Equal(t, LegacyProcessList, Parse([]byte(`{"processes":[]}`)).Kind)
	assert.Equal(t, Unrecognized, Parse([]byte(`true`)).Kind)
	assert.Equal(t, "presence-map", PresenceMap.String())
}

func TestNormalizeAt_StampsReceiveTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snapshot := NormalizeAt([]byte(`{"cluely": true}`), at)
	assert.Equal(t, at, snapshot.ReceivedAt)

	encoded, err := json.Marshal(snapshot)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"processName":"cluely","isRunning":true}]`, string(encoded))
}
