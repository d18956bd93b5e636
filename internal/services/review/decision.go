// Package review decides whether a finalized detection goes through human
// review ("DQ") before it counts as a violation, and pushes review candidates
// to the external review service.
package review

import (
	"time"

	"roadwatch-event-engine/internal/models"
)

// Decision is the outcome of the review gate.
type Decision int

const (
	Disabled Decision = iota
	Enabled
)

// Code returns the wire representation of the decision.
func (d Decision) Code() int {
	if d == Enabled {
		return 1
	}
	return 0
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	defaultStartTime = "00:00"
	defaultEndTime   = "23:59"
)

// Decide evaluates the review gate for one event. The per-event isOpenDQ
// override in the algorithm parameters takes precedence; without it the
// global review switch and the algorithm's debug switch for the event's
// source decide.
func Decide(e *models.Event, alg *models.Algorithm, globalReview string, isBox bool) Decision {
	param, ok := e.AlgParam()
	if !ok {
		return Disabled
	}

	if raw, present := param["isOpenDQ"]; present {
		flag, _ := models.AsFloat(raw)
		if flag == 0 {
			return Disabled
		}
		window, ok := param["openDqTime"].(map[string]any)
		if !ok {
			return Disabled
		}
		return decideWindow(e.EventTime.Time, window)
	}

	if globalReview != "1" {
		return Disabled
	}
	sw := alg.DebugSwitch
	if isBox {
		sw = alg.BoxDebugSwitch
	}
	if sw == 1 {
		return Enabled
	}
	return Disabled
}

// decideWindow checks the event timestamp against the configured review
// window. The date range applies only when both bounds are present and
// well-formed; the time-of-day range is inclusive and defaults to the whole
// day.
func decideWindow(eventTime time.Time, window map[string]any) Decision {
	startDate, _ := window["openDqStartDate"].(string)
	endDate, _ := window["openDqEndDate"].(string)
	if startDate != "" && endDate != "" && validDate(startDate) && validDate(endDate) {
		date := eventTime.Format(dateLayout)
		if date < startDate || date > endDate {
			return Disabled
		}
	}

	startTime, _ := window["openDqStartTime"].(string)
	if !validTime(startTime) {
		startTime = defaultStartTime
	}
	endTime, _ := window["openDqEndTime"].(string)
	if !validTime(endTime) {
		endTime = defaultEndTime
	}
	clock := eventTime.Format(timeLayout)
	if clock < startTime || clock > endTime {
		return Disabled
	}
	return Enabled
}

func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

func validTime(s string) bool {
	if s == "" {
		return false
	}
	_, err := time.Parse(timeLayout, s)
	return err == nil
}

// ApplyMarking stamps the event with the decision's lifecycle marking. A
// review-enabled event is queued for review; a disabled one is finalized
// directly, carrying a synthetic marking record so downstream consumers see
// who (nobody) reviewed it.
func ApplyMarking(e *models.Event, d Decision, now time.Time) {
	e.MarkingTime = &now
	if d == Enabled {
		e.Marking = models.MarkingInit
		return
	}
	e.Marking = models.MarkingEvent
	if e.Extra == nil {
		e.Extra = map[string]any{}
	}
	e.Extra["marking"] = map[string]any{
		"markingTime":    now.UnixMilli(),
		"markingBy":      0,
		"markEventCount": 1,
	}
}
