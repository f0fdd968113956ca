// SPDX-License-Identifier: Apache-2.0

// Package trackertime encodes wall-clock instants as tracker timestamps:
// unix time at 1/10,000 second resolution written as a canonical decimal
// string. The string form never overflows and sorts by (length, text).
package trackertime

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Zero is the timestamp of the unix epoch.
const Zero Timestamp = "0"

// unitsPerSecond is the tracker resolution.
const unitsPerSecond = 10_000

const nanosPerUnit = int64(time.Second) / unitsPerSecond

// ErrInvalidTimestamp reports text that is not a canonical timestamp, or a
// time before the epoch where one is not allowed.
var ErrInvalidTimestamp = errors.New("invalid tracker timestamp")

// Timestamp is a canonical tracker timestamp: "0" or [1-9][0-9]*.
type Timestamp string

// Now returns the current wall-clock time as a tracker timestamp.
func Now() Timestamp {
	return FromTime(time.Now())
}

// FromTime rounds t to the nearest 1/10,000 second. Instants before the
// epoch map to Zero.
func FromTime(t time.Time) Timestamp {
	nsec := int64(t.Nanosecond())
	frac := nsec / nanosPerUnit
	if rem := nsec % nanosPerUnit; rem*2 >= nanosPerUnit {
		frac++
	}

	units := new(big.Int).Mul(big.NewInt(t.Unix()), big.NewInt(unitsPerSecond))
	units.Add(units, big.NewInt(frac))
	if units.Sign() <= 0 {
		return Zero
	}
	return Timestamp(units.String())
}

// FromUnix converts whole unix seconds.
func FromUnix(seconds int64) (Timestamp, error) {
	if seconds < 0 {
		return "", fmt.Errorf("%w: negative unix time %d", ErrInvalidTimestamp, seconds)
	}
	if seconds == 0 {
		return Zero, nil
	}
	return Timestamp(strconv.FormatInt(seconds, 10) + "0000"), nil
}

// FromUnixString converts whole unix seconds given as text of any length.
func FromUnixString(seconds string) (Timestamp, error) {
	if seconds == "0" {
		return Zero, nil
	}
	return Parse(seconds + "0000")
}

// Parse validates an encoded tracker timestamp.
func Parse(s string) (Timestamp, error) {
	if !valid(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return Timestamp(s), nil
}

// Must is Parse for constants; it panics on invalid input.
func Must(s string) Timestamp {
	ts, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ts
}

func valid(s string) bool {
	if s == "0" {
		return true
	}
	if s == "" || s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Compare returns -1, 0 or +1. Both operands must be canonical.
func Compare(a, b Timestamp) int {
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return strings.Compare(string(a), string(b))
}

func (t Timestamp) Before(o Timestamp) bool { return Compare(t, o) < 0 }
func (t Timestamp) After(o Timestamp) bool  { return Compare(t, o) > 0 }

func (t Timestamp) String() string { return string(t) }

// Valid reports whether t is canonical. The zero value "" is not.
func (t Timestamp) Valid() bool { return valid(string(t)) }

// Int returns the timestamp as an arbitrary precision integer.
func (t Timestamp) Int() *big.Int {
	n, ok := new(big.Int).SetString(string(t), 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

// Time converts back to wall-clock time. Values beyond the range of
// time.Time saturate.
func (t Timestamp) Time() time.Time {
	n := t.Int()
	sec, frac := new(big.Int).QuoRem(n, big.NewInt(unitsPerSecond), new(big.Int))
	if !sec.IsInt64() {
		return time.Unix(1<<62, 0).UTC()
	}
	return time.Unix(sec.Int64(), frac.Int64()*nanosPerUnit).UTC()
}
