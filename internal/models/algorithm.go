package models

import "encoding/json"

// Algorithm is the master-data record of one analysis algorithm assigned to a
// project. The review switches decide whether its detections go through human
// review before being finalized.
type Algorithm struct {
	ID             int64           `json:"id"`
	ProjectID      int64           `json:"projectId"`
	Code           string          `json:"code"`
	EventType      string          `json:"eventType"`
	Label          string          `json:"label"`
	DrawType       string          `json:"drawType"`
	EditableConfig json.RawMessage `json:"editableConfig"`
	DebugSwitch    int             `json:"debugSwitch"`
	BoxDebugSwitch int             `json:"boxDebugSwitch"`
}

// EditableFields returns the "config" array of the editable config blob, used
// to tell reviewers which event fields may be corrected.
func (a *Algorithm) EditableFields() []any {
	if len(a.EditableConfig) == 0 {
		return nil
	}
	var wrapper map[string]any
	if err := json.Unmarshal(a.EditableConfig, &wrapper); err != nil {
		return nil
	}
	fields, _ := wrapper["config"].([]any)
	return fields
}

// Task is the master-data record of one camera analysis task.
type Task struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	ProjectID   int64  `json:"projectId"`
	ProjectName string `json:"projectName"`
	CompanyID   int64  `json:"companyId"`
	CompanyName string `json:"companyName"`
	CameraCode  string `json:"cameraCode"`
	Version     string `json:"version"`
}
