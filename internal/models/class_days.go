package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ClassDays is the normalized set of weekdays a student attends, sorted Sunday first.
type ClassDays []time.Weekday

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday, "일": time.Sunday, "일요일": time.Sunday,
	"mon": time.Monday, "monday": time.Monday, "월": time.Monday, "월요일": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday, "화": time.Tuesday, "화요일": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday, "수": time.Wednesday, "수요일": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday, "목": time.Thursday, "목요일": time.Thursday,
	"fri": time.Friday, "friday": time.Friday, "금": time.Friday, "금요일": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday, "토": time.Saturday, "토요일": time.Saturday,
}

// ParseClassDays converts numeric ("0".."6") or named weekday tokens into ClassDays.
func ParseClassDays(raw []string) (ClassDays, error) {
	days := make([]time.Weekday, 0, len(raw))
	for _, token := range raw {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if n, err := strconv.Atoi(token); err == nil {
			if n < 0 || n > 6 {
				return nil, fmt.Errorf("weekday %d out of range 0-6", n)
			}
			days = append(days, time.Weekday(n))
			continue
		}
		day, ok := weekdayNames[token]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", token)
		}
		days = append(days, day)
	}
	return NewClassDays(days...), nil
}

// NewClassDays sorts and de-duplicates the given weekdays.
func NewClassDays(days ...time.Weekday) ClassDays {
	seen := make(map[time.Weekday]struct{}, len(days))
	out := make(ClassDays, 0, len(days))
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Contains reports whether day is one of the class days.
func (c ClassDays) Contains(day time.Weekday) bool {
	for _, d := range c {
		if d == day {
			return true
		}
	}
	return false
}

// Equal compares two normalized sets.
func (c ClassDays) Equal(other ClassDays) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Weekdays returns the underlying slice.
func (c ClassDays) Weekdays() []time.Weekday {
	return []time.Weekday(c)
}

// MarshalJSON encodes the set as weekday numbers.
func (c ClassDays) MarshalJSON() ([]byte, error) {
	nums := make([]int, len(c))
	for i, d := range c {
		nums[i] = int(d)
	}
	return json.Marshal(nums)
}

// UnmarshalJSON accepts numbers, numeric strings or weekday names.
func (c *ClassDays) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("class days must be an array: %w", err)
	}
	tokens := make([]string, 0, len(items))
	for _, item := range items {
		var n int
		if err := json.Unmarshal(item, &n); err == nil {
			tokens = append(tokens, strconv.Itoa(n))
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return fmt.Errorf("invalid weekday %s", string(item))
		}
		tokens = append(tokens, s)
	}
	parsed, err := ParseClassDays(tokens)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value stores the set as a jsonb array of numbers.
func (c ClassDays) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return c.MarshalJSON()
}

// Scan reads a jsonb array.
func (c *ClassDays) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = ClassDays{}
		return nil
	case []byte:
		return c.UnmarshalJSON(v)
	case string:
		return c.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported class_days type %T", src)
	}
}
