// Package instrument parses venue instrument names into structured identifiers.
//
// Recognised shapes:
//
//	BTC-PERPETUAL           perpetual
//	BTC-27DEC24             dated future
//	BTC-27DEC24-60000-C     call option
//	BTC-5JAN25-95000-P      put option
package instrument

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrMalformed = errors.New("malformed instrument name")

type Kind string

const (
	KindPerpetual Kind = "perpetual"
	KindFuture    Kind = "future"
	KindCall      Kind = "call"
	KindPut       Kind = "put"
)

type ID struct {
	Name       string
	Underlying string
	Expiry     time.Time
	Strike     float64
	Kind       Kind
}

func (id ID) String() string {
	return id.Name
}

func (id ID) IsOption() bool {
	return id.Kind == KindCall || id.Kind == KindPut
}

func (id ID) IsPerpetual() bool {
	return id.Kind == KindPerpetual
}

// YearsToExpiry measures time to expiry on a 365-day year.
func (id ID) YearsToExpiry(now time.Time) float64 {
	if id.Expiry.IsZero() {
		return 0
	}
	return id.Expiry.Sub(now).Seconds() / (365 * 24 * 60 * 60)
}

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// Parse validates name and returns its structured form. Dated instruments
// expire at cutoffHour:00 UTC on the expiry date.
func Parse(name string, cutoffHour int) (ID, error) {
	parts := strings.Split(name, "-")
	if len(parts) < 2 || parts[0] == "" {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformed, name)
	}
	id := ID{Name: name, Underlying: parts[0]}
	if len(parts) == 2 && parts[1] == "PERPETUAL" {
		id.Kind = KindPerpetual
		return id, nil
	}
	expiry, err := parseExpiry(parts[1], cutoffHour)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: %v", ErrMalformed, name, err)
	}
	id.Expiry = expiry
	switch len(parts) {
	case 2:
		id.Kind = KindFuture
		return id, nil
	case 4:
	default:
		return ID{}, fmt.Errorf("%w: %q", ErrMalformed, name)
	}
	strike, err := parseStrike(parts[2])
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: %v", ErrMalformed, name, err)
	}
	id.Strike = strike
	switch parts[3] {
	case "C":
		id.Kind = KindCall
	case "P":
		id.Kind = KindPut
	default:
		return ID{}, fmt.Errorf("%w: %q: unknown option type %q", ErrMalformed, name, parts[3])
	}
	return id, nil
}

// MustParse is for tests and constants.
func MustParse(name string, cutoffHour int) ID {
	id, err := Parse(name, cutoffHour)
	if err != nil {
		panic(err)
	}
	return id
}

func parseExpiry(raw string, cutoffHour int) (time.Time, error) {
	if len(raw) < 6 || len(raw) > 7 {
		return time.Time{}, fmt.Errorf("bad expiry %q", raw)
	}
	yearRaw := raw[len(raw)-2:]
	monthRaw := raw[len(raw)-5 : len(raw)-2]
	dayRaw := raw[:len(raw)-5]
	month, ok := months[monthRaw]
	if !ok {
		return time.Time{}, fmt.Errorf("bad expiry month %q", monthRaw)
	}
	day, err := strconv.Atoi(dayRaw)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("bad expiry day %q", dayRaw)
	}
	year, err := strconv.Atoi(yearRaw)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad expiry year %q", yearRaw)
	}
	expiry := time.Date(2000+year, month, day, cutoffHour, 0, 0, 0, time.UTC)
	if expiry.Day() != day {
		return time.Time{}, fmt.Errorf("expiry %q does not exist", raw)
	}
	return expiry, nil
}

// parseStrike accepts plain numbers and the venue's "d" decimal separator (e.g. 0d625).
func parseStrike(raw string) (float64, error) {
	strike, err := strconv.ParseFloat(strings.Replace(raw, "d", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("bad strike %q", raw)
	}
	if strike <= 0 {
		return 0, fmt.Errorf("non-positive strike %q", raw)
	}
	return strike, nil
}
