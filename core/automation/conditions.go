package automation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Condition keys
const (
	CondDaysBefore   = "daysBefore"   // payload.daysBefore <= N
	CondGradeBelow   = "gradeBelow"   // payload.grade < N
	CondGradeAtLeast = "gradeAtLeast" // payload.grade >= N
	CondClassID      = "classId"      // payload.classId == V
)

type conditionCheck func(threshold interface{}, payload Payload) bool

var conditionChecks = map[string]conditionCheck{
	CondDaysBefore: func(threshold interface{}, payload Payload) bool {
		v, lim, ok := numbers(payload["daysBefore"], threshold)
		return ok && v <= lim
	},
	CondGradeBelow: func(threshold interface{}, payload Payload) bool {
		v, lim, ok := numbers(payload["grade"], threshold)
		return ok && v < lim
	},
	CondGradeAtLeast: func(threshold interface{}, payload Payload) bool {
		v, lim, ok := numbers(payload["grade"], threshold)
		return ok && v >= lim
	},
	CondClassID: func(threshold interface{}, payload Payload) bool {
		v, ok := payload["classId"]
		if !ok || v == nil {
			return false
		}
		return fmt.Sprint(v) == fmt.Sprint(threshold)
	},
}

// Match evaluates every recognized condition against payload. It has no side effects.
// Keys without a registered check are ignored; a recognized key whose payload field is absent fails.
func (c Conditions) Match(payload Payload) bool {
	for key, threshold := range c {
		check, ok := conditionChecks[key]
		if !ok {
			continue
		}
		if !check(threshold, payload) {
			return false
		}
	}
	return true
}

func numbers(value, threshold interface{}) (float64, float64, bool) {
	v, ok := toFloat(value)
	if !ok {
		return 0, 0, false
	}
	lim, ok := toFloat(threshold)
	if !ok {
		return 0, 0, false
	}
	return v, lim, true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
