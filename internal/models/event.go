package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Marking is the lifecycle tag of an event.
type Marking string

const (
	// MarkingInit means the event is queued for human review.
	MarkingInit Marking = "init"
	// MarkingEvent means the event is finalized as a violation.
	MarkingEvent Marking = "event"
	// MarkingFiltered means the event was suppressed by the filter pipeline.
	MarkingFiltered Marking = "filtered"
	// MarkingDiscard means the event was explicitly voided.
	MarkingDiscard Marking = "discard"
	// MarkingUnknown marks payloads the reporting engine could not classify.
	MarkingUnknown Marking = "unknown"
)

// FilterReason tags why an event was dropped by the filter pipeline.
type FilterReason string

const (
	ReasonYellowPlate        FilterReason = "yellowPlate"
	ReasonNoPlate            FilterReason = "noPlate"
	ReasonBlurryPlate        FilterReason = "blurryPlate"
	ReasonPlateColorFiltered FilterReason = "plateColorFiltered"
	ReasonSpecialPlate       FilterReason = "specialPlateFilter"
	ReasonShortPlate         FilterReason = "shortPlateFilter"
	ReasonSamePlate          FilterReason = "samePlate"
	ReasonSamePosition       FilterReason = "samePosition"
	ReasonIgnoreAllEvents    FilterReason = "ignoreAllEvents"
	ReasonIgnorePartEvents   FilterReason = "ignorePartEvents"
	ReasonAngleFilter        FilterReason = "angleFilter"
	ReasonNonMotorVehicle    FilterReason = "nonMotorVehicle"
)

// EventSource distinguishes where a detection originated.
type EventSource string

const (
	SourceBox      EventSource = "box"
	SourcePlatform EventSource = "platform"
)

// Millis is a timestamp serialized as Unix milliseconds on the wire.
type Millis struct {
	time.Time
}

func NewMillis(t time.Time) Millis { return Millis{Time: t} }

func (m Millis) MarshalJSON() ([]byte, error) {
	if m.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(m.UnixMilli(), 10)), nil
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		m.Time = time.Time{}
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	m.Time = time.UnixMilli(ms)
	return nil
}

// Event is the incoming detection report, immutable for the duration of one
// filtering/review decision. Field names follow the reporting wire format.
type Event struct {
	ID                       int64          `json:"id,omitempty"`
	TaskCode                 string         `json:"taskCode"`
	Source                   string         `json:"source"`
	EventType                string         `json:"eventType"`
	EventTypeName            string         `json:"eventTypeName,omitempty"`
	EventTime                Millis         `json:"eventTime"`
	EndTime                  Millis         `json:"endTime,omitempty"`
	Marking                  Marking        `json:"marking,omitempty"`
	EngineEventID            string         `json:"engineEventId"`
	VehicleType              string         `json:"vehicleType,omitempty"`
	PlateNumber              string         `json:"plateNumber,omitempty"`
	PlateColor               string         `json:"plateColor,omitempty"`
	SpecialCarType           string         `json:"specialCarType,omitempty"`
	EngineVersion            string         `json:"engineVersion,omitempty"`
	Snapshot                 []any          `json:"snapshot,omitempty"`
	SnapshotURICompress      string         `json:"snapshotUriCompress,omitempty"`
	SnapshotURIRawCompress   string         `json:"snapshotUriRawCompress,omitempty"`
	SnapshotURICoverCompress string         `json:"snapshotUriCoverCompress,omitempty"`
	ExtraData                map[string]any `json:"extraData,omitempty"`
	CameraCode               string         `json:"cameraCode,omitempty"`
	EvidenceStatus           string         `json:"evidenceStatus,omitempty"`
	EvidenceURL              string         `json:"evidenceUrl,omitempty"`
	OriginalViolationIndex   int            `json:"originalViolationIndex,omitempty"`
	Extra                    map[string]any `json:"extra,omitempty"`

	// Populated from task master data, not trusted from the wire.
	ProjectID    int64        `json:"projectId,omitempty"`
	ProjectName  string       `json:"projectName,omitempty"`
	CompanyID    int64        `json:"companyId,omitempty"`
	CompanyName  string       `json:"companyName,omitempty"`
	FilteredType FilterReason `json:"filteredType,omitempty"`
	MarkingTime  *time.Time   `json:"markingTime,omitempty"`
}

// IsBox reports whether the event came from an edge device rather than a
// platform analyzer.
func (e *Event) IsBox() bool { return EventSource(e.Source) != SourcePlatform }

// AlgParam returns the triggering algorithm's parameter block, located at
// extraData.originalConfig.algList[originalViolationIndex].algParam.
func (e *Event) AlgParam() (map[string]any, bool) {
	if e.ExtraData == nil {
		return nil, false
	}
	oc, ok := e.ExtraData["originalConfig"].(map[string]any)
	if !ok {
		return nil, false
	}
	algList, ok := oc["algList"].([]any)
	if !ok {
		return nil, false
	}
	idx := e.OriginalViolationIndex
	if idx < 0 || idx >= len(algList) {
		return nil, false
	}
	item, ok := algList[idx].(map[string]any)
	if !ok {
		return nil, false
	}
	param, ok := item["algParam"].(map[string]any)
	return param, ok
}

// CoolingSecond extracts the algParam cooling window, in seconds.
func (e *Event) CoolingSecond() (int64, bool) {
	param, ok := e.AlgParam()
	if !ok {
		return 0, false
	}
	f, ok := AsFloat(param["cooling_second"])
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// PlateNumberScore extracts the recognition confidence of the plate number.
func (e *Event) PlateNumberScore() (float64, bool) {
	if e.ExtraData == nil {
		return 0, false
	}
	return AsFloat(e.ExtraData["plateNumberScore"])
}

// Position returns extraData.position when it is a non-empty array.
func (e *Event) Position() ([]float64, bool) {
	if e.ExtraData == nil {
		return nil, false
	}
	raw, ok := e.ExtraData["position"].([]any)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	return AsFloatSlice(raw), true
}

// SnapshotPts returns snapshot[0].pts as a point list, without validating
// its shape.
func (e *Event) SnapshotPts() ([][]float64, bool) {
	if len(e.Snapshot) == 0 {
		return nil, false
	}
	first, ok := e.Snapshot[0].(map[string]any)
	if !ok {
		return nil, false
	}
	raw, ok := first["pts"].([]any)
	if !ok {
		return nil, false
	}
	pts := make([][]float64, 0, len(raw))
	for _, p := range raw {
		arr, ok := p.([]any)
		if !ok {
			pts = append(pts, nil)
			continue
		}
		pts = append(pts, AsFloatSlice(arr))
	}
	return pts, true
}

// SummaryLabel reads extraData.summary[key].label, defaulting to "nullValue"
// when the path or label is absent or blank.
func (e *Event) SummaryLabel(key string) (string, bool) {
	const nullValue = "nullValue"
	if e.ExtraData == nil {
		return "", false
	}
	summary, ok := e.ExtraData["summary"].(map[string]any)
	if !ok {
		return "", false
	}
	entry, ok := summary[key].(map[string]any)
	if !ok {
		return nullValue, true
	}
	label, _ := entry["label"].(string)
	if label == "" {
		return nullValue, true
	}
	return label, true
}

// EventResult reads extraData.eventResult.result.
func (e *Event) EventResult() (string, bool) {
	if e.ExtraData == nil {
		return "", false
	}
	er, ok := e.ExtraData["eventResult"].(map[string]any)
	if !ok {
		return "", false
	}
	result, ok := er["result"].(string)
	return result, ok
}

// AsFloat converts the numeric shapes a decoded JSON value can take.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// AsFloatSlice converts a decoded JSON array to floats, mapping non-numeric
// entries to 0 as the originating engines do.
func AsFloatSlice(raw []any) []float64 {
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, _ := AsFloat(v)
		out = append(out, f)
	}
	return out
}
