package events

import "time"

// DeriveTiming breaks t down in UTC. The result is stored with the event and
// never recomputed.
func DeriveTiming(t time.Time) Timing {
	utc := t.UTC()
	_, week := utc.ISOWeek()
	return Timing{
		Hour:                  utc.Hour(),
		DayOfWeek:             int(utc.Weekday()),
		DayOfMonth:            utc.Day(),
		Month:                 int(utc.Month()),
		Year:                  utc.Year(),
		Quarter:               (int(utc.Month())-1)/3 + 1,
		Week:                  week,
		TimezoneName:          "UTC",
		TimezoneOffsetMinutes: 0,
	}
}

// DayNames labels dayOfWeek values, 0 being Sunday.
var DayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// DayName returns "" for out of range values.
func DayName(day int) string {
	if day < 0 || day >= len(DayNames) {
		return ""
	}
	return DayNames[day]
}
