package readings

import (
	"bytes"
	"encoding/json"
	"time"
)

const DefaultUnit = "celsius"

// Timestamp is a sort-key value that may arrive as a JSON string or number.
// It is kept in its textual form.
type Timestamp string

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Timestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = Timestamp(n.String())
	return nil
}

func (t Timestamp) String() string { return string(t) }

// ReadingInput is a decoded write payload.
type ReadingInput struct {
	SessionID        string    `json:"sessionId"`
	SensorName       string    `json:"sensorName"`
	Temperature      *float64  `json:"temperature"`
	Timestamp        Timestamp `json:"timestamp"`
	RateOfRise       *float64  `json:"rateOfRise,omitempty"`
	Unit             string    `json:"unit,omitempty"`
	SessionStartTime Timestamp `json:"sessionStartTime,omitempty"`
}

// ID is the opaque reading identifier returned on write.
func (in ReadingInput) ID() string {
	return in.SessionID + "#" + in.Timestamp.String()
}

type SensorReading struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	RateOfRise  float64 `json:"rateOfRise"`
}

// SensorGroups maps sensor name to its readings, keeping sensors in the order
// they were first added.
type SensorGroups struct {
	order []string
	byKey map[string][]SensorReading
}

func (g *SensorGroups) Add(sensor string, r SensorReading) {
	if g.byKey == nil {
		g.byKey = make(map[string][]SensorReading)
	}
	if _, ok := g.byKey[sensor]; !ok {
		g.order = append(g.order, sensor)
	}
	g.byKey[sensor] = append(g.byKey[sensor], r)
}

func (g SensorGroups) Sensors() []string { return append([]string(nil), g.order...) }

func (g SensorGroups) Get(sensor string) []SensorReading { return g.byKey[sensor] }

func (g SensorGroups) Len() int { return len(g.order) }

func (g SensorGroups) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sensor := range g.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(sensor)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(g.byKey[sensor])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type SessionMetadata struct {
	SessionID        string  `json:"sessionId"`
	SessionStartTime *string `json:"sessionStartTime"`
	Unit             string  `json:"unit"`
}

type SessionReadings struct {
	SessionID       string          `json:"sessionId"`
	SessionMetadata SessionMetadata `json:"sessionMetadata"`
	TemperatureData SensorGroups    `json:"temperatureData"`
	TotalReadings   int             `json:"totalReadings"`
	RetrievedAt     time.Time       `json:"retrievedAt"`
}

// SessionSummary is the per-session aggregate built from one scan batch.
type SessionSummary struct {
	SessionID        string     `json:"sessionId"`
	SessionStartTime *string    `json:"sessionStartTime"`
	CreatedAt        *time.Time `json:"createdAt"`
	Sensors          []string   `json:"sensors"`
	SensorCount      int        `json:"sensorCount"`
	ReadingCount     int        `json:"readingCount"`
}

type SessionPage struct {
	Sessions      []SessionSummary `json:"sessions"`
	TotalReturned int              `json:"totalReturned"`
	HasMore       bool             `json:"hasMore"`
	Cursor        *string          `json:"cursor"`
	RetrievedAt   time.Time        `json:"retrievedAt"`
}
