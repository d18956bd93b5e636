package models

import (
	"encoding/json"
	"fmt"
)

// Setting group names of the per-project filter configuration.
const (
	SettingGroupPlate = "plate"
	SettingGroupOther = "other"
)

// FilterConfigRow is one raw configuration row as stored per project.
type FilterConfigRow struct {
	ProjectID    int64           `json:"projectId"`
	SettingGroup string          `json:"settingGroup"`
	Config       json.RawMessage `json:"config"`
}

// EventTypeList is a rule's applicability allow-list. Whether an empty list
// means "applies to nothing" or "applies to everything" differs per rule, so
// the list only answers membership and emptiness.
type EventTypeList []string

func (l EventTypeList) Contains(eventType string) bool {
	for _, t := range l {
		if t == eventType {
			return true
		}
	}
	return false
}

func (l EventTypeList) Empty() bool { return len(l) == 0 }

// ToggleRule is the common {enable, eventTypes} rule shape.
type ToggleRule struct {
	Enable     bool          `json:"enable"`
	EventTypes EventTypeList `json:"eventTypes"`
}

// BlurryPlateRule drops plates recognized below a confidence threshold.
type BlurryPlateRule struct {
	ToggleRule
	BlurryLevel *float64 `json:"blurryLevel"`
}

// PlateTypesRule keeps only the configured plate colors.
type PlateTypesRule struct {
	ToggleRule
	PlateColor []string `json:"plateColor"`
}

// NonMotorPlateEntry is one allow-list entry of the non-motor plate filter.
type NonMotorPlateEntry struct {
	PlateColor []string      `json:"plateColor"`
	EventTypes EventTypeList `json:"eventTypes"`
}

// SpecialTextRule drops plates containing any forbidden substring. It is
// enabled by presence: there is no enable flag in the stored shape.
type SpecialTextRule struct {
	SpecialTexts []string      `json:"specialTexts"`
	EventTypes   EventTypeList `json:"eventTypes"`
}

// SamePlateRule is the cache-backed plate dedup rule.
type SamePlateRule struct {
	ToggleRule
	CoolingSeconds *int `json:"coolingSeconds"`
}

// PlateGroupConfig is the typed "plate" setting group.
type PlateGroupConfig struct {
	OnlyYellowPlate          *ToggleRule          `json:"onlyYellowPlate"`
	IgnoreNoPlateEvents      *ToggleRule          `json:"ignoreNoPlateEvents"`
	IgnoreBlurryPlateEvents  *BlurryPlateRule     `json:"ignoreBlurryPlateEvents"`
	OnlyPlateTypes           *PlateTypesRule      `json:"onlyPlateTypes"`
	NonMotorPlateTypesFilter []NonMotorPlateEntry `json:"nonMotorPlateTypesFilter"`
	PlateSpecialTextFilter   *SpecialTextRule     `json:"plateSpecialTextFilter"`
	ShortPlateFilter         *ToggleRule          `json:"shortPlateFilter"`
	IgnoreSamePlateEvents    *SamePlateRule       `json:"ignoreSamePlateEvents"`
}

// SamePosRule is the cache-backed spatial dedup rule.
type SamePosRule struct {
	ToggleRule
	CoolingSeconds    *int     `json:"coolingSeconds"`
	PosOverlapPercent *float64 `json:"posOverlapPercent"`
}

// PartEventsRule drops events whose analyzer result matches a configured value.
type PartEventsRule struct {
	ToggleRule
	EventResult string `json:"eventResult"`
}

// AngleRule drops continuous-lane-change events below a direction angle.
type AngleRule struct {
	Angle *float64 `json:"angle"`
}

// NonMotorVehicleEntry is one deny-list entry of the non-motor vehicle filter.
type NonMotorVehicleEntry struct {
	NonMotorVehicleTypes []string      `json:"nonMotorVehicleTypes"`
	EventTypes           EventTypeList `json:"eventTypes"`
}

// OtherGroupConfig is the typed "other" setting group.
type OtherGroupConfig struct {
	IgnoreSamePosEvents        *SamePosRule           `json:"ignoreSamePosEvents"`
	IgnoreAllEvents            *ToggleRule            `json:"ignoreAllEvents"`
	IgnorePartEvents           *PartEventsRule        `json:"ignorePartEvents"`
	AngleFilter                *AngleRule             `json:"angleFilter"`
	NonMotorVehicleTypesFilter []NonMotorVehicleEntry `json:"nonMotorVehicleTypesFilter"`
}

// FilterConfig is the decoded per-project configuration. A nil group means
// the corresponding stage is skipped entirely.
type FilterConfig struct {
	ProjectID int64
	Plate     *PlateGroupConfig
	Other     *OtherGroupConfig
}

// ParseFilterConfig decodes the stored rows of one project into typed groups.
// Unknown setting groups are ignored; malformed group JSON is an error so bad
// configuration is caught at load time rather than per event.
func ParseFilterConfig(projectID int64, rows []FilterConfigRow) (*FilterConfig, error) {
	cfg := &FilterConfig{ProjectID: projectID}
	for _, row := range rows {
		if len(row.Config) == 0 {
			continue
		}
		switch row.SettingGroup {
		case SettingGroupPlate:
			var group PlateGroupConfig
			if err := json.Unmarshal(row.Config, &group); err != nil {
				return nil, fmt.Errorf("decode plate group for project %d: %w", projectID, err)
			}
			cfg.Plate = &group
		case SettingGroupOther:
			var group OtherGroupConfig
			if err := json.Unmarshal(row.Config, &group); err != nil {
				return nil, fmt.Errorf("decode other group for project %d: %w", projectID, err)
			}
			cfg.Other = &group
		}
	}
	return cfg, nil
}
