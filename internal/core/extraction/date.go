package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const monthNames = `jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec`

var (
	isoDatePattern     = regexp.MustCompile(`\b(20\d{2})[/\-](0?[1-9]|1[0-2])[/\-](0?[1-9]|[12]\d|3[01])\b`)
	usDatePattern      = regexp.MustCompile(`\b(0?[1-9]|1[0-2])[/\-](0?[1-9]|[12]\d|3[01])[/\-](20\d{2})\b`)
	monthFirstPattern  = regexp.MustCompile(`(?i)\b(` + monthNames + `)[a-z]*\.?\s+(\d{1,2})[,\s]+(20\d{2})\b`)
	dayFirstPattern    = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(` + monthNames + `)[a-z]*\.?\s+(20\d{2})\b`)
	todayPattern       = regexp.MustCompile(`(?i)\btoday\b`)
	yesterdayPattern   = regexp.MustCompile(`(?i)\byesterday\b`)
	monthAbbreviations = strings.Split(monthNames, "|")
)

// DateRules resolve a printed or spoken calendar date, in this order:
// YYYY-MM-DD, MM/DD/YYYY, "Mon DD, YYYY", "DD Mon YYYY".
var DateRules = []Rule[time.Time]{
	{Name: "iso", Detect: func(text string) (time.Time, bool) {
		return dateFromMatch(isoDatePattern.FindStringSubmatch(text), 1, 2, 3)
	}},
	{Name: "month_day_year", Detect: func(text string) (time.Time, bool) {
		return dateFromMatch(usDatePattern.FindStringSubmatch(text), 3, 1, 2)
	}},
	{Name: "month_name_first", Detect: func(text string) (time.Time, bool) {
		return namedDateFromMatch(monthFirstPattern.FindStringSubmatch(text), 3, 1, 2)
	}},
	{Name: "day_first", Detect: func(text string) (time.Time, bool) {
		return namedDateFromMatch(dayFirstPattern.FindStringSubmatch(text), 3, 2, 1)
	}},
}

// relativeDateRules resolve "today" and "yesterday" against now.
func relativeDateRules(now time.Time) []Rule[time.Time] {
	today := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return []Rule[time.Time]{
		{Name: "today", Detect: func(text string) (time.Time, bool) {
			return today, todayPattern.MatchString(text)
		}},
		{Name: "yesterday", Detect: func(text string) (time.Time, bool) {
			return today.AddDate(0, 0, -1), yesterdayPattern.MatchString(text)
		}},
	}
}

func dateFromMatch(match []string, yearIdx, monthIdx, dayIdx int) (time.Time, bool) {
	if match == nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(match[monthIdx])
	if err != nil {
		return time.Time{}, false
	}
	return calendarDate(match[yearIdx], month, match[dayIdx])
}

func namedDateFromMatch(match []string, yearIdx, monthIdx, dayIdx int) (time.Time, bool) {
	if match == nil {
		return time.Time{}, false
	}
	name := strings.ToLower(match[monthIdx])
	for i, abbr := range monthAbbreviations {
		if abbr == name {
			return calendarDate(match[yearIdx], i+1, match[dayIdx])
		}
	}
	return time.Time{}, false
}

// calendarDate rejects dates that time.Date would normalize, such as 02/30.
func calendarDate(rawYear string, month int, rawDay string) (time.Time, bool) {
	year, err := strconv.Atoi(rawYear)
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(rawDay)
	if err != nil {
		return time.Time{}, false
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Year() != year || int(date.Month()) != month || date.Day() != day {
		return time.Time{}, false
	}
	return date, true
}
