// Package calendar decides whether the market is open on a given UTC date.
package calendar

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dyike/ArenaGo/consts"
)

const dateLayout = "2006-01-02"

//go:embed holidays.yaml
var defaultHolidays []byte

type holidayFile struct {
	Market   string `yaml:"market"`
	Holidays []struct {
		Date string `yaml:"date"`
		Name string `yaml:"name"`
	} `yaml:"holidays"`
}

// Calendar is a static holiday lookup.
type Calendar struct {
	market   string
	holidays map[string]string
}

// Default loads the embedded NYSE table.
func Default() *Calendar {
	c, err := Parse(defaultHolidays)
	if err != nil {
		panic(fmt.Sprintf("calendar: embedded holidays: %v", err))
	}
	return c
}

// Parse reads a holiday table in the embedded YAML layout.
func Parse(data []byte) (*Calendar, error) {
	var f holidayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse holidays: %w", err)
	}
	c := &Calendar{market: f.Market, holidays: make(map[string]string, len(f.Holidays))}
	for _, h := range f.Holidays {
		if _, err := time.Parse(dateLayout, h.Date); err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h.Date, err)
		}
		c.holidays[h.Date] = h.Name
	}
	return c, nil
}

func (c *Calendar) Market() string { return c.market }

// Holiday reports whether t's UTC date is a closure.
func (c *Calendar) Holiday(t time.Time) (string, bool) {
	date := t.UTC().Format(dateLayout)
	_, ok := c.holidays[date]
	return date, ok
}

func IsWeekend(t time.Time) bool {
	switch t.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// SkipReason returns the reason a tick at t must not trade, or "" when
// the market is open. Weekends win over holidays.
func (c *Calendar) SkipReason(t time.Time) string {
	if IsWeekend(t) {
		return consts.SkipWeekend
	}
	if date, ok := c.Holiday(t); ok {
		return consts.SkipHolidayPrefix + date
	}
	return ""
}
