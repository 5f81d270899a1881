package link

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DataRate is a transmission rate in bits per second.
type DataRate uint64

// Common rates.
const (
	BitPerSecond  DataRate = 1
	KilobitPerSec          = 1000 * BitPerSecond
	MegabitPerSec          = 1000 * KilobitPerSec
	GigabitPerSec          = 1000 * MegabitPerSec
)

// rateUnits maps a unit suffix to its multiplier in bits per second. Upper
// case B denotes bytes.
var rateUnits = map[string]uint64{
	"bps": 1, "b/s": 1,
	"Bps": 8, "B/s": 8,
	"kbps": 1e3, "Kbps": 1e3, "kb/s": 1e3, "Kb/s": 1e3,
	"kBps": 8e3, "KBps": 8e3, "kB/s": 8e3, "KB/s": 8e3,
	"Kibps": 1 << 10, "KiBps": 8 << 10,
	"Mbps": 1e6, "Mb/s": 1e6, "MBps": 8e6, "MB/s": 8e6,
	"Mibps": 1 << 20, "MiBps": 8 << 20,
	"Gbps": 1e9, "Gb/s": 1e9, "GBps": 8e9, "GB/s": 8e9,
	"Gibps": 1 << 30, "GiBps": 8 << 30,
}

// ParseDataRate parses strings such as "3Mbps", "1000KBps" or "500bps".
// A bare number is taken as bits per second.
func ParseDataRate(s string) (DataRate, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	num, unit := s, "bps"
	if i >= 0 {
		num, unit = s[:i], strings.TrimSpace(s[i:])
	}
	if num == "" {
		return 0, fmt.Errorf("data rate %q: missing value", s)
	}
	mult, ok := rateUnits[unit]
	if !ok {
		return 0, fmt.Errorf("data rate %q: unknown unit %q", s, unit)
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("data rate %q: %w", s, err)
	}
	return DataRate(v * float64(mult)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *DataRate) UnmarshalText(text []byte) error {
	v, err := ParseDataRate(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (r DataRate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r DataRate) String() string {
	switch {
	case r >= GigabitPerSec && r%GigabitPerSec == 0:
		return fmt.Sprintf("%dGbps", r/GigabitPerSec)
	case r >= MegabitPerSec && r%MegabitPerSec == 0:
		return fmt.Sprintf("%dMbps", r/MegabitPerSec)
	case r >= KilobitPerSec && r%KilobitPerSec == 0:
		return fmt.Sprintf("%dKbps", r/KilobitPerSec)
	default:
		return fmt.Sprintf("%dbps", uint64(r))
	}
}

// TxTime returns the time needed to serialize n bytes at rate r, never
// less than 1ns for a non-empty packet. A zero rate transmits instantly.
func (r DataRate) TxTime(n int) time.Duration {
	if r == 0 || n <= 0 {
		return 0
	}
	bits := uint64(n) * 8
	return max(time.Duration(bits*uint64(time.Second)/uint64(r)), time.Nanosecond)
}

// Representable reports whether serializing n bytes at rate r takes at
// least one nanosecond, the resolution of the simulation clock.
func (r DataRate) Representable(n int) bool {
	return r != 0 && n > 0 && uint64(n)*8*uint64(time.Second) >= uint64(r)
}
