// Package normalize turns arbitrarily shaped message records into canonical
// models.Message values.
//
// Each canonical field is resolved from a fixed list of aliases; the first
// alias holding a non-nil value wins. Values of unexpected types are coerced
// rather than rejected, so a record is only refused when no room can be
// determined for it.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/roomlog/internal/models"
)

// ErrMissingRoom is returned when a record has no usable room.
var ErrMissingRoom = errors.New("normalize: room is required")

// Alias lists, in resolution order.
var (
	idKeys         = []string{"id"}
	roomKeys       = []string{"room", "roomId", "room_id"}
	authorKeys     = []string{"author", "autor"}
	textKeys       = []string{"text", "message", "texto"}
	timestampKeys  = []string{"ts", "timestamp"}
	fileNameKeys   = []string{"filename", "file_name", "fileName"}
	fileMimeKeys   = []string{"file_mime", "mimetype", "fileMime"}
	fileSizeKeys   = []string{"file_size", "size", "fileSize"}
	fileBucketKeys = []string{"file_bucket", "fileBucket"}
	fileObjectKeys = []string{"file_object", "fileObject"}
)

// now and newID are replaced in tests.
var (
	now   = func() time.Time { return time.Now() }
	newID = func() string { return ulid.Make().String() }
)

// Message canonicalizes a single record. A missing id gets a fresh ULID and
// a missing or unparsable timestamp gets the current time in milliseconds.
func Message(raw models.Raw) (models.Message, error) {
	room := strings.TrimSpace(firstString(raw, roomKeys))
	if room == "" {
		return models.Message{}, ErrMissingRoom
	}

	msg := models.Message{
		ID:         firstString(raw, idKeys),
		Room:       room,
		Author:     firstString(raw, authorKeys),
		Text:       firstString(raw, textKeys),
		FileName:   firstString(raw, fileNameKeys),
		FileMime:   firstString(raw, fileMimeKeys),
		FileBucket: firstString(raw, fileBucketKeys),
		FileObject: firstString(raw, fileObjectKeys),
	}
	if msg.ID == "" {
		msg.ID = newID()
	}
	if ts, ok := firstInt(raw, timestampKeys); ok {
		msg.Timestamp = ts
	} else {
		msg.Timestamp = now().UnixMilli()
	}
	if size, ok := firstInt(raw, fileSizeKeys); ok {
		msg.FileSize = size
	}
	return msg, nil
}

// Messages canonicalizes a collection belonging to room. Records without a
// room of their own inherit it; records that still cannot be normalized are
// dropped. The result is sorted by timestamp, keeping input order for ties.
func Messages(room string, raws []models.Raw) []models.Message {
	out := make([]models.Message, 0, len(raws))
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		if room != "" && strings.TrimSpace(firstString(raw, roomKeys)) == "" {
			withRoom := make(models.Raw, len(raw)+1)
			for k, v := range raw {
				withRoom[k] = v
			}
			withRoom["room"] = room
			raw = withRoom
		}
		msg, err := Message(raw)
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	SortByTimestamp(out)
	return out
}

// SortByTimestamp sorts msgs ascending by timestamp. The sort is stable, so
// messages with equal timestamps keep their relative order.
func SortByTimestamp(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
}

func first(raw models.Raw, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstString(raw models.Raw, keys []string) string {
	v, ok := first(raw, keys)
	if !ok {
		return ""
	}
	return String(v)
}

func firstInt(raw models.Raw, keys []string) (int64, bool) {
	v, ok := first(raw, keys)
	if !ok {
		return 0, false
	}
	return Int(v)
}

// String renders a scalar value as text. Nil becomes the empty string.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Int converts numeric values and numeric strings to int64.
func Int(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint32:
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case float32:
		return floatToInt(float64(t))
	case float64:
		return floatToInt(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return floatToInt(f)
		}
		return 0, false
	case string:
		return parseInt(t)
	case []byte:
		return parseInt(string(t))
	default:
		return 0, false
	}
}

func parseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return floatToInt(f)
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
