package events

import "encoding/json"

// Event name constants
const (
	DevicesUpdated = "devices.updated"
	MonitorState   = "monitor.state"
	MonitorBattery = "monitor.battery"
	MonitorClosed  = "monitor.closed"
)

// Event is a generic event from daemon, delivered over SSE or websocket.
type Event struct {
	Name string          `json:"name"` // SSE event name
	Data json.RawMessage `json:"data"` // Raw JSON payload
}

// DevicesUpdatedEvent is the typed payload for devices.updated.
type DevicesUpdatedEvent struct {
	Labels  []string `json:"labels"`
	Waiting bool     `json:"waitingForPermissions"`
	Ts      int64    `json:"ts"`
}

// MonitorStateEvent is the typed payload for monitor.state.
type MonitorStateEvent struct {
	Address string `json:"address"`
	From    string `json:"from"`
	To      string `json:"to"`
	Ts      int64  `json:"ts"`
}

// MonitorBatteryEvent is the typed payload for monitor.battery.
type MonitorBatteryEvent struct {
	Address string `json:"address"`
	Level   int    `json:"level"`
	Text    string `json:"text"`
	Ts      int64  `json:"ts"`
}

// MonitorClosedEvent is the typed payload for monitor.closed.
type MonitorClosedEvent struct {
	Address string `json:"address"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.MonitorBatteryEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Address, payload.Level)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
