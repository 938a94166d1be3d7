package types

import (
	"math"
	"strconv"

	"github.com/bytedance/sonic"
)

// AppletID identifies an applet. The sync engine never interprets it.
type AppletID string

func (id AppletID) String() string { return string(id) }

// Snapshot is the full key-value mapping of an applet's storage
type Snapshot map[string]string

// Clone returns an independent copy of the snapshot
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Markers holds the version markers of the two applet resources
type Markers struct {
	Storage string `json:"storage"`
	Content string `json:"content"`
}

// Normalize coerces a decoded JSON payload into a Snapshot. Anything that is
// not a JSON object becomes an empty snapshot.
func Normalize(raw interface{}) Snapshot {
	switch v := raw.(type) {
	case Snapshot:
		return v.Clone()
	case map[string]string:
		return Snapshot(v).Clone()
	case map[string]interface{}:
		out := make(Snapshot, len(v))
		for key, val := range v {
			out[key] = stringify(val)
		}
		return out
	default:
		return Snapshot{}
	}
}

// stringify mirrors JavaScript String() for scalars; nested values are kept
// as their JSON text.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return strconv.FormatFloat(t, 'g', -1, 64)
		}
		if t == math.Trunc(t) && math.Abs(t) < 1e21 {
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		data, err := sonic.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
