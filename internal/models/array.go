package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IDArray represents a PostgreSQL bigint[] column holding entity ids.
type IDArray []uint

// Scan implements the sql.Scanner interface
func (a *IDArray) Scan(value interface{}) error {
	if value == nil {
		*a = IDArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		// PostgreSQL array format: {1,2,3}
		trimmed := strings.Trim(strings.TrimSpace(v), "{}")
		if trimmed == "" {
			*a = IDArray{}
			return nil
		}

		parts := strings.Split(trimmed, ",")
		result := make(IDArray, 0, len(parts))
		for _, part := range parts {
			part = strings.Trim(strings.TrimSpace(part), "\"")
			if part == "" || strings.EqualFold(part, "NULL") {
				continue
			}
			id, err := strconv.ParseUint(part, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q in array: %w", part, err)
			}
			result = append(result, uint(id))
		}
		*a = result
		return nil
	case []byte:
		// Try to parse as JSON first
		var ids []uint
		if err := json.Unmarshal(v, &ids); err == nil {
			*a = ids
			return nil
		}
		return a.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into IDArray", value)
	}
}

// Value implements the driver.Valuer interface
func (a IDArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}

	parts := make([]string, len(a))
	for i, id := range a {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, ",")), nil
}

// Contains reports whether id is a member of the array.
func (a IDArray) Contains(id uint) bool {
	for _, v := range a {
		if v == id {
			return true
		}
	}
	return false
}

// Unique returns the distinct ids in ascending order.
func (a IDArray) Unique() []uint {
	seen := make(map[uint]struct{}, len(a))
	out := make([]uint, 0, len(a))
	for _, id := range a {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
