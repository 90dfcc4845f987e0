// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package duration

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	durationRegex = regexp.MustCompile(`^(\d+)([smhdwMy])$`)

	ErrInvalidFormat = errors.New("invalid duration format")
	ErrNotPositive   = errors.New("duration must be positive")
)

const day = 24 * time.Hour

var units = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": day,
	"w": 7 * day,
	"M": 30 * day,
	"y": 365 * day,
}

// Parse parses "<n><unit>" where unit is one of s, m, h, d, w, M (30 days)
// or y (365 days). Surrounding whitespace is ignored.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	matches := durationRegex.FindStringSubmatch(s)
	if len(matches) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	value, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	unit := units[matches[2]]
	if value > int64(1<<63-1)/int64(unit) {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidFormat, s)
	}
	return time.Duration(value) * unit, nil
}

// ParsePositive is Parse that also rejects zero.
func ParsePositive(s string) (time.Duration, error) {
	d, err := Parse(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrNotPositive, s)
	}
	return d, nil
}

// MustParse parses a duration string and panics if parsing fails
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("duration: parse error: %v", err))
	}
	return d
}

// Humanize renders d in its largest whole unit: "2 days", "1 hour", "30 minutes".
func Humanize(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= day:
		return plural(int64(d/day), "day")
	case d >= time.Hour:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int64(d/time.Minute), "minute")
	default:
		return plural(int64(d/time.Second), "second")
	}
}
