package reconcile

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/driving-school-api/internal/models"
)

const (
	defaultCupos    = 30
	defaultDuration = "1h"
)

// NormalizedSlot is the canonical comparison form of a slot.
type NormalizedSlot struct {
	SlotID                  string
	Date                    string
	Start                   string
	End                     string
	ClassType               models.ClassType
	TicketClassID           string
	Status                  string
	Students                []string
	Cupos                   int
	Amount                  float64
	LocationID              string
	ClassID                 string
	Duration                string
	StudentID               string
	Booked                  bool
	CreatedAsRecurrence     bool
	OriginalRecurrenceGroup string
	OriginalSlotID          string
	OriginalTicketClassID   string
}

// Category reports the category of the normalized class type.
func (n NormalizedSlot) Category() models.SlotCategory {
	return n.ClassType.Category()
}

// Normalize canonicalises a slot so formatting noise never affects equality.
// It never fails: malformed values degrade to best-effort forms or defaults.
func Normalize(slot models.Slot) NormalizedSlot {
	return NormalizedSlot{
		SlotID:                  strings.TrimSpace(slot.SlotID),
		Date:                    NormalizeDate(slot.Date),
		Start:                   NormalizeTime(slot.Start),
		End:                     NormalizeTime(slot.End),
		ClassType:               models.ParseClassType(string(slot.ClassType)),
		TicketClassID:           normalizeRef(models.Ref(slot.TicketClassID)),
		Status:                  strings.ToLower(strings.TrimSpace(string(slot.Status))),
		Students:                NormalizeStudents(slot.Students),
		Cupos:                   NormalizeCupos(slot.Cupos),
		Amount:                  NormalizeAmount(slot.Amount),
		LocationID:              normalizeRef(slot.LocationID),
		ClassID:                 normalizeRef(slot.ClassID),
		Duration:                NormalizeDuration(slot.Duration),
		StudentID:               normalizeRef(slot.StudentID),
		Booked:                  slot.Booked,
		CreatedAsRecurrence:     slot.CreatedAsRecurrence,
		OriginalRecurrenceGroup: strings.TrimSpace(slot.OriginalRecurrenceGroup),
		OriginalSlotID:          strings.TrimSpace(slot.OriginalSlotID),
		OriginalTicketClassID:   strings.TrimSpace(slot.OriginalTicketClassID),
	}
}

var (
	timezoneSuffix = regexp.MustCompile(`(?i)(z|[+-]\d{2}:?\d{2})$`)
	clockPattern   = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::\d{2}(?:\.\d+)?)?\s*([ap]\.?m\.?)?$`)
)

// NormalizeTime returns a 24-hour HH:MM time, stripping seconds and timezone data.
// Unrecognised input is returned trimmed.
func NormalizeTime(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if idx := strings.IndexAny(value, "Tt"); idx >= 0 && idx < len(value)-1 && strings.Contains(value[idx:], ":") {
		value = value[idx+1:]
	}
	value = strings.TrimSpace(timezoneSuffix.ReplaceAllString(value, ""))

	match := clockPattern.FindStringSubmatch(strings.ToLower(value))
	if match == nil {
		return strings.TrimSpace(raw)
	}
	hour, _ := strconv.Atoi(match[1])
	minute, _ := strconv.Atoi(match[2])
	if meridiem := strings.ReplaceAll(match[3], ".", ""); meridiem != "" {
		if hour < 1 || hour > 12 {
			return strings.TrimSpace(raw)
		}
		switch {
		case meridiem == "pm" && hour != 12:
			hour += 12
		case meridiem == "am" && hour == 12:
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return strings.TrimSpace(raw)
	}
	return twoDigits(hour) + ":" + twoDigits(minute)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"Mon Jan 02 2006",
}

// NormalizeDate truncates a date or timestamp to YYYY-MM-DD.
// Values that do not parse fall back to plain truncation.
func NormalizeDate(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if len(value) >= 10 {
		if t, err := time.Parse("2006-01-02", value[:10]); err == nil {
			return t.Format("2006-01-02")
		}
		return value[:10]
	}
	return value
}

var durationPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-z]*)$`)

// NormalizeDuration collapses numeric or textual durations into "{N}h".
func NormalizeDuration(raw models.FlexString) string {
	value := strings.ToLower(strings.TrimSpace(string(raw)))
	match := durationPattern.FindStringSubmatch(value)
	if match == nil {
		return defaultDuration
	}
	amount, err := strconv.ParseFloat(match[1], 64)
	if err != nil || amount <= 0 {
		return defaultDuration
	}
	switch match[2] {
	case "", "h", "hr", "hrs", "hour", "hours":
	case "m", "min", "mins", "minute", "minutes":
		amount = amount / 60
	default:
		return defaultDuration
	}
	amount = math.Round(amount*100) / 100
	return strconv.FormatFloat(amount, 'f', -1, 64) + "h"
}

// NormalizeStudents de-duplicates and sorts the roster identifiers.
func NormalizeStudents(refs models.StudentRefs) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		id := normalizeRef(ref)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NormalizeCupos coerces capacity into a positive integer, defaulting to 30.
func NormalizeCupos(raw models.FlexString) int {
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return defaultCupos
	}
	if n, err := strconv.Atoi(value); err == nil {
		if n > 0 {
			return n
		}
		return defaultCupos
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 1 {
		return int(f)
	}
	return defaultCupos
}

// NormalizeAmount parses a monetary amount, treating garbage as zero.
func NormalizeAmount(raw models.FlexString) float64 {
	value := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(raw)), "$"))
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func normalizeRef(ref models.Ref) string {
	value := strings.TrimSpace(string(ref))
	switch strings.ToLower(value) {
	case "null", "undefined":
		return ""
	}
	return value
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
