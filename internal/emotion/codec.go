package emotion

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"
)

// ErrCorruptState is returned by Decode when the stored blob cannot be
// parsed at all. The accompanying State is the default record.
var ErrCorruptState = errors.New("corrupt emotional state blob")

// Encode serialises s to its persisted JSON form.
func Encode(s State) ([]byte, error) {
	out := s.Clone()
	out.sanitize()
	if out.LastUpdate != nil {
		t := out.LastUpdate.UTC()
		out.LastUpdate = &t
	}
	if out.CriticalSince != nil {
		t := out.CriticalSince.UTC()
		out.CriticalSince = &t
	}
	out.WindowStart = out.WindowStart.UTC()
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal emotional state: %w", err)
	}
	return data, nil
}

// Decode reads a persisted blob leniently: missing fields take their
// defaults, unknown fields are ignored, and numbers stored as strings are
// accepted. An empty blob yields the default record without error.
func Decode(data []byte) (State, error) {
	s := Default()
	if len(data) == 0 {
		return s, nil
	}
	if !gjson.ValidBytes(data) {
		return s, ErrCorruptState
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return s, ErrCorruptState
	}

	if v := root.Get("temperature"); v.Exists() {
		s.Temperature = v.Float()
	}
	if v := root.Get("zone"); v.Exists() {
		if z := Zone(v.String()); z.Valid() {
			s.Zone = z
		}
	}
	s.PositiveCount = intField(root, "positive_count")
	s.NegativeCount = intField(root, "negative_count")
	s.SessionPositive = intField(root, "session_positive")
	s.SessionNegative = intField(root, "session_negative")
	if v := root.Get("ratio"); v.Exists() {
		s.Ratio = v.Float()
	}
	if v := root.Get("ratio_target"); v.Exists() {
		s.RatioTarget = v.Float()
	}
	if t, ok := timeField(root, "window_start"); ok {
		s.WindowStart = t
	}
	arrayField(root, "horsemen_detected").ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String && v.String() != "" {
			s.HorsemenDetected = append(s.HorsemenDetected, v.String())
		}
		return true
	})
	arrayField(root, "repair_history").ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		rec := RepairRecord{
			Quality:   Quality(v.Get("quality").String()),
			TempDelta: v.Get("temp_delta").Float(),
		}
		if t, ok := timeField(v, "timestamp"); ok {
			rec.Timestamp = t
		}
		s.RepairHistory = append(s.RepairHistory, rec)
		return true
	})
	if t, ok := timeField(root, "last_update"); ok {
		s.LastUpdate = &t
	}
	if t, ok := timeField(root, "critical_since"); ok {
		s.CriticalSince = &t
	}

	s.sanitize()
	return s, nil
}

func arrayField(r gjson.Result, path string) gjson.Result {
	v := r.Get(path)
	if !v.IsArray() {
		return gjson.Result{}
	}
	return v
}

// maxCount caps stored counters so huge values convert to int predictably.
const maxCount = math.MaxInt32

func intField(r gjson.Result, path string) int {
	v := r.Get(path)
	if !v.Exists() {
		return 0
	}
	f := v.Float()
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f >= maxCount:
		return maxCount
	}
	return int(f)
}

func timeField(r gjson.Result, path string) (time.Time, bool) {
	v := r.Get(path)
	if !v.Exists() || v.Type != gjson.String || v.String() == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v.String())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
