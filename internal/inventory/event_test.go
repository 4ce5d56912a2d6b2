package inventory_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ubuntu/insights-inventory/internal/inventory"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		provenance string
		endpoint   string
		body       string

		wantType      string
		wantCategory  inventory.Category
		wantCompleted bool
		wantScanID    *int64
		wantTimestamp *string
		wantInventory map[string]any
		wantProgram   map[string]any
		wantRaw       string // defaults to body
		wantErr       error
	}{
		"OS event": {
			body:          `{"type":"OS","ID":5,"timestamp":"2020-01-01","inventory":{"hostname":"h1"}}`,
			wantType:      "OS",
			wantCategory:  inventory.OS,
			wantScanID:    ptr(int64(5)),
			wantTimestamp: ptr("2020-01-01"),
			wantInventory: map[string]any{"hostname": "h1"},
		},
		"Program event": {
			body:         `{"type":"program","ID":42,"program":{"name":"vim","version":"9.0"}}`,
			wantType:     "program",
			wantCategory: inventory.Programs,
			wantScanID:   ptr(int64(42)),
			wantProgram:  map[string]any{"name": "vim", "version": "9.0"},
		},
		"Completion event": {
			body:          `{"type":"port_end","ID":7}`,
			wantType:      "port_end",
			wantCategory:  inventory.Ports,
			wantCompleted: true,
			wantScanID:    ptr(int64(7)),
		},
		"Scan id as a string is accepted": {
			body:         `{"type":"network","ID":"12"}`,
			wantType:     "network",
			wantCategory: inventory.Network,
			wantScanID:   ptr(int64(12)),
		},
		"Null fields are absent": {
			body:         `{"type":"hardware","ID":null,"timestamp":null}`,
			wantType:     "hardware",
			wantCategory: inventory.Hardware,
		},
		"Remote provenance": {
			provenance:   "(web01) any->syscollector",
			body:         `{"type":"process_list"}`,
			wantType:     "process_list",
			wantCategory: inventory.Processes,
		},
		"Remote provenance with spaces": {
			provenance:   "(web01) > syscollector",
			body:         `{"type":"process"}`,
			wantType:     "process",
			wantCategory: inventory.Processes,
		},
		"Scan id beyond float precision is kept": {
			body:          `{"type":"program_end","ID":9007199254740993}`,
			wantType:      "program_end",
			wantCategory:  inventory.Programs,
			wantCompleted: true,
			wantScanID:    ptr(int64(9007199254740993)),
		},
		"Inventory numbers keep their digits": {
			body:          `{"type":"hardware","inventory":{"ram_total":9007199254740993,"cpu_mhz":2400.5}}`,
			wantType:      "hardware",
			wantCategory:  inventory.Hardware,
			wantInventory: map[string]any{"ram_total": json.Number("9007199254740993"), "cpu_mhz": json.Number("2400.5")},
		},
		"Body over several lines is compacted": {
			body:         "{\n  \"type\": \"port\",\n  \"ID\": 3\r\n}\n",
			wantType:     "port",
			wantCategory: inventory.Ports,
			wantScanID:   ptr(int64(3)),
			wantRaw:      `{"type":"port","ID":3}`,
		},

		// Validation errors
		"Error on other producer":          {provenance: "rootcheck", body: `{"type":"OS"}`, wantErr: inventory.ErrValidation},
		"Error on other remote producer":   {provenance: "(web01) any->rootcheck", body: `{"type":"OS"}`, wantErr: inventory.ErrValidation},
		"Error on remote without producer": {provenance: "(web01) syscollector", body: `{"type":"OS"}`, wantErr: inventory.ErrValidation},
		"Error on empty endpoint":          {endpoint: "-", body: `{"type":"OS"}`, wantErr: inventory.ErrValidation},
		"Error on endpoint with separator": {endpoint: "../001", body: `{"type":"OS"}`, wantErr: inventory.ErrValidation},
		"Error on endpoint with space":     {endpoint: "0 01", body: `{"type":"OS"}`, wantErr: inventory.ErrValidation},

		// Decode errors
		"Error on invalid JSON":           {body: `{"type":`, wantErr: inventory.ErrDecode},
		"Error on JSON array":             {body: `[]`, wantErr: inventory.ErrDecode},
		"Error on missing type":           {body: `{"ID":1}`, wantErr: inventory.ErrDecode},
		"Error on unknown type":           {body: `{"type":"users"}`, wantErr: inventory.ErrDecode},
		"Error on OS completion":          {body: `{"type":"OS_end"}`, wantErr: inventory.ErrDecode},
		"Error on non numeric scan id":    {body: `{"type":"port","ID":"abc"}`, wantErr: inventory.ErrDecode},
		"Error on non object inventory":   {body: `{"type":"OS","inventory":"h1"}`, wantErr: inventory.ErrDecode},
		"Error on non object program":     {body: `{"type":"program","program":[1,2]}`, wantErr: inventory.ErrDecode},
		"Error on object as a timestamp":  {body: `{"type":"OS","timestamp":{}}`, wantErr: inventory.ErrDecode},
		"Error on empty body":             {body: ``, wantErr: inventory.ErrDecode},
		"Error on type with only a value": {body: `{"type":""}`, wantErr: inventory.ErrDecode},
		"Error on data after the event":   {body: `{"type":"OS"} {}`, wantErr: inventory.ErrDecode},
		"Error on invalid multiline JSON": {body: "{\n\"type\":", wantErr: inventory.ErrDecode},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if tc.provenance == "" {
				tc.provenance = "syscollector"
			}
			switch tc.endpoint {
			case "":
				tc.endpoint = "001"
			case "-":
				tc.endpoint = ""
			}

			got, err := inventory.Parse(inventory.RawEvent{EndpointID: tc.endpoint, Provenance: tc.provenance, Body: tc.body})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr, "Parse should return the expected error")
				return
			}
			require.NoError(t, err, "Parse should not return an error")

			require.Equal(t, tc.wantType, got.Type, "Unexpected type")
			require.Equal(t, tc.wantCategory, got.Category, "Unexpected category")
			require.Equal(t, tc.wantCompleted, got.Completed, "Unexpected completion")
			require.Equal(t, tc.wantScanID, got.ScanID, "Unexpected scan id")
			require.Equal(t, tc.wantTimestamp, got.Timestamp, "Unexpected timestamp")
			require.Equal(t, tc.wantInventory, got.Inventory, "Unexpected inventory")
			require.Equal(t, tc.wantProgram, got.Program, "Unexpected program")
			require.Equal(t, tc.endpoint, got.EndpointID, "Endpoint should be kept")
			if tc.wantRaw == "" {
				tc.wantRaw = tc.body
			}
			require.Equal(t, tc.wantRaw, got.Raw, "Raw body should be kept on a single line")
		})
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		timestamp *string
		payload   map[string]any

		want map[string]any
	}{
		"Timestamp is merged":          {timestamp: ptr("t1"), payload: map[string]any{"name": "n"}, want: map[string]any{"name": "n", "timestamp": "t1"}},
		"No timestamp":                 {payload: map[string]any{"name": "n"}, want: map[string]any{"name": "n"}},
		"Payload timestamp is ignored": {payload: map[string]any{"timestamp": "inner"}, want: map[string]any{}},
		"Nil payload":                  {timestamp: ptr("t1"), want: map[string]any{"timestamp": "t1"}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ev := inventory.Event{Timestamp: tc.timestamp}
			got := ev.Fields(tc.payload)
			require.Equal(t, tc.want, got, "Fields should merge the report timestamp")
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}
