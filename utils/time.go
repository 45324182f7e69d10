// Package utils provides utility functions for the application.
package utils

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // embedded zone database so Asia/Tehran resolves on minimal images
)

// DisplayLayout is the wall-clock layout operators type and read
const DisplayLayout = "2006-01-02 15:04"

var (
	locationCache   = map[string]*time.Location{}
	locationCacheMu sync.RWMutex
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// UTCNowPtr returns a pointer to the current time in UTC
func UTCNowPtr() *time.Time {
	now := UTCNow()
	return &now
}

// UTCNowAdd returns the current UTC time plus the given duration
func UTCNowAdd(d time.Duration) time.Time {
	return UTCNow().Add(d)
}

// TimeToUTCPtr converts a time pointer to UTC if it's not already
func TimeToUTCPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// LoadLocation resolves an IANA zone name, caching the result
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultDisplayTimezone
	}

	locationCacheMu.RLock()
	loc, ok := locationCache[name]
	locationCacheMu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}

	locationCacheMu.Lock()
	locationCache[name] = loc
	locationCacheMu.Unlock()
	return loc, nil
}

func TehranNow() (time.Time, error) {
	loc, err := LoadLocation(DefaultDisplayTimezone)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().In(loc), nil
}

// ParseDisplayTime interprets a wall-clock value ("2006-01-02 15:04") in the
// given zone and returns the matching UTC instant.
func ParseDisplayTime(value, zone string) (time.Time, error) {
	loc, err := LoadLocation(zone)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(DisplayLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid display time %q: %w", value, err)
	}
	return t.UTC(), nil
}

// FormatDisplayTime renders an instant as wall-clock time in the given zone.
// The instant itself is never altered.
func FormatDisplayTime(t time.Time, zone string) (string, error) {
	loc, err := LoadLocation(zone)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format(DisplayLayout), nil
}
