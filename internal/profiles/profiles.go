// Package profiles does schedule arithmetic over a float profile index:
// which profile is the latest per float, when the next one is due, and which
// floats are due inside a time window.
//
// Nothing here reads the wall clock. Callers pass the window explicitly.
package profiles

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Profile is one row of a profile index.
type Profile struct {
	File     string // e.g. meds/4902480/profiles/R4902480_123.nc
	WMO      string
	Cycle    int
	Date     time.Time
	NextDate time.Time // zero until Next has been applied
}

// Window is the open interval (Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// LastDay returns the 24 hours ending at now.
func LastDay(now time.Time) Window {
	return Window{Start: now.Add(-24 * time.Hour), End: now}
}

func (w Window) Contains(t time.Time) bool {
	return t.After(w.Start) && t.Before(w.End)
}

var ErrInvalidCycle = errors.New("cycle time must be positive")

// ParseWMO extracts the float WMO number from an index file path of the form
// <dac>/<wmo>/...
func ParseWMO(file string) (string, error) {
	parts := strings.Split(file, "/")
	if len(parts) < 2 || parts[1] == "" {
		return "", fmt.Errorf("can't extract WMO number from '%s'", file)
	}
	return parts[1], nil
}

// ParseCycle extracts the cycle number from a profile file name such as
// R4902480_123.nc or D4902480_123D.nc. The cycle is zero when the name
// carries none.
func ParseCycle(file string) int {
	base := strings.TrimSuffix(path.Base(file), path.Ext(file))
	i := strings.LastIndexByte(base, '_')
	if i < 0 {
		return 0
	}
	digits := strings.TrimRight(base[i+1:], "D")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// Last returns the n most recent profiles of each float, newest first within
// each float and floats in order of first appearance.
func Last(profiles []Profile, n int) []Profile {
	if n <= 0 {
		return nil
	}

	var order []string
	byWMO := make(map[string][]Profile)
	for _, p := range profiles {
		if _, ok := byWMO[p.WMO]; !ok {
			order = append(order, p.WMO)
		}
		byWMO[p.WMO] = append(byWMO[p.WMO], p)
	}

	var out []Profile
	for _, wmo := range order {
		ps := byWMO[wmo]
		sort.SliceStable(ps, func(i, j int) bool {
			return ps[i].Date.After(ps[j].Date)
		})
		if len(ps) > n {
			ps = ps[:n]
		}
		out = append(out, ps...)
	}
	return out
}

// Next returns a copy of profiles with NextDate set cycle after Date. A
// typical float cycles every 240 hours.
func Next(profiles []Profile, cycle time.Duration) ([]Profile, error) {
	if cycle <= 0 {
		return nil, ErrInvalidCycle
	}
	out := make([]Profile, len(profiles))
	for i, p := range profiles {
		if p.Date.IsZero() {
			return nil, fmt.Errorf("profile %s has no date", p.File)
		}
		p.NextDate = p.Date.Add(cycle)
		out[i] = p
	}
	return out, nil
}

// Expected returns the WMO numbers of floats whose next profile falls inside
// w, each once, in order of first appearance. Profiles without a NextDate are
// given one cycle after their Date.
func Expected(profiles []Profile, cycle time.Duration, w Window) ([]string, error) {
	seen := make(map[string]bool)
	var wmos []string
	for _, p := range profiles {
		next := p.NextDate
		if next.IsZero() {
			if cycle <= 0 {
				return nil, ErrInvalidCycle
			}
			next = p.Date.Add(cycle)
		}
		if w.Contains(next) && !seen[p.WMO] {
			seen[p.WMO] = true
			wmos = append(wmos, p.WMO)
		}
	}
	return wmos, nil
}
