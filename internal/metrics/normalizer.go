package metrics

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"time"

	"trueinterview/pkg/types"
)

// MaxEntries bounds how many processes a snapshot carries
const MaxEntries = 15

const bytesPerMB = 1024 * 1024

// Kind tags which shape a raw report arrived in
type Kind int

const (
	Unrecognized Kind = iota
	LegacyProcessList
	PresenceMap
)

func (k Kind) String() string {
	switch k {
	case LegacyProcessList:
		return "legacy-process-list"
	case PresenceMap:
		return "presence-map"
	default:
		return "unrecognized"
	}
}

// Payload is a parsed report before reduction.
// Only the field matching Kind is set.
type Payload struct {
	Kind      Kind
	Processes []types.ProcessMetric
	Presence  []types.AppPresence
}

// Normalize reduces a raw monitoring report to the canonical snapshot.
// Anything it cannot read comes back as an empty snapshot, never an error.
func Normalize(raw []byte) *types.MetricsSnapshot {
	return NormalizeAt(raw, time.Now())
}

// NormalizeAt is Normalize with an explicit receive time
func NormalizeAt(raw []byte, receivedAt time.Time) *types.MetricsSnapshot {
	p := Parse(raw)
	snapshot := &types.MetricsSnapshot{ReceivedAt: receivedAt}

	switch p.Kind {
	case LegacyProcessList:
		procs := p.Processes
		// FUNCTIONAL DISCOVERY: stable sort keeps report order between equal cpu values
		sort.SliceStable(procs, func(i, j int) bool { return procs[i].CPU > procs[j].CPU })
		if len(procs) > MaxEntries {
			procs = procs[:MaxEntries]
		}
		snapshot.Kind = types.MetricsKindNumeric
		snapshot.Processes = procs
	case PresenceMap:
		presence := p.Presence
		if len(presence) > MaxEntries {
			presence = presence[:MaxEntries]
		}
		snapshot.Kind = types.MetricsKindPresence
		snapshot.Presence = presence
	default:
		snapshot.Kind = types.MetricsKindEmpty
	}

	if snapshot.Len() == 0 {
		snapshot.Kind = types.MetricsKindEmpty
		snapshot.Processes = nil
		snapshot.Presence = nil
	}
	return snapshot
}

// Parse classifies a raw report without sorting or truncating it
func Parse(raw []byte) Payload {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Payload{}
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Payload{}
		}
		return Payload{Kind: LegacyProcessList, Processes: parseDescriptors(items)}
	case '{':
		return parseObject(trimmed)
	default:
		return Payload{}
	}
}

func parseObject(raw []byte) Payload {
	// Legacy agents wrap the list as {"processes": [...]}
	var wrapped struct {
		Processes []json.RawMessage `json:"processes"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Processes != nil {
		return Payload{Kind: LegacyProcessList, Processes: parseDescriptors(wrapped.Processes)}
	}

	presence, ok := parsePresence(raw)
	if !ok {
		return Payload{}
	}
	return Payload{Kind: PresenceMap, Presence: presence}
}

// parsePresence reads {name: bool, ...} keeping the order keys were sent in.
// A single non-bool value disqualifies the whole object.
func parsePresence(raw []byte) ([]types.AppPresence, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}

	var out []types.AppPresence
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, false
		}
		valTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		running, ok := valTok.(bool)
		if !ok {
			return nil, false
		}
		if name == "" {
			continue
		}
		out = append(out, types.AppPresence{ProcessName: name, IsRunning: running})
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return nil, false
	}
	return out, true
}

func parseDescriptors(items []json.RawMessage) []types.ProcessMetric {
	out := make([]types.ProcessMetric, 0, len(items))
	for _, item := range items {
		var fields map[string]interface{}
		if err := json.Unmarshal(item, &fields); err != nil {
			continue
		}
		name := stringField(fields, "processName")
		if name == "" {
			name = stringField(fields, "name")
		}
		if name == "" {
			continue
		}

		metric := types.ProcessMetric{ProcessName: name}
		if cpu, ok := numberField(fields, "cpu"); ok {
			metric.CPU = round1(cpu)
		}
		if memory, ok := numberField(fields, "memory"); ok {
			metric.Memory = memory
			metric.MemoryMB = round1(memory / bytesPerMB)
		} else if mb, ok := numberField(fields, "memoryMB"); ok {
			// The python agent only reports megabytes
			metric.MemoryMB = mb
		}
		out = append(out, metric)
	}
	return out
}

func stringField(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

func numberField(fields map[string]interface{}, key string) (float64, bool) {
	f, ok := fields[key].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
