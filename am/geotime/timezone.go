// Package geotime resolves the timezone schedules and quota dates are evaluated in.
package geotime

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teranos/linkpulse/errors"
)

var locationKeywordTimezones = map[string]string{
	"amsterdam":     "Europe/Amsterdam",
	"netherlands":   "Europe/Amsterdam",
	"berlin":        "Europe/Berlin",
	"germany":       "Europe/Berlin",
	"london":        "Europe/London",
	"dublin":        "Europe/Dublin",
	"paris":         "Europe/Paris",
	"madrid":        "Europe/Madrid",
	"rome":          "Europe/Rome",
	"new york":      "America/New_York",
	"san francisco": "America/Los_Angeles",
	"chicago":       "America/Chicago",
	"toronto":       "America/Toronto",
	"sao paulo":     "America/Sao_Paulo",
	"bangalore":     "Asia/Kolkata",
	"singapore":     "Asia/Singapore",
	"tokyo":         "Asia/Tokyo",
	"sydney":        "Australia/Sydney",
}

var countryCodeTimezones = map[string]string{
	"nl": "Europe/Amsterdam",
	"de": "Europe/Berlin",
	"gb": "Europe/London",
	"uk": "Europe/London",
	"ie": "Europe/Dublin",
	"fr": "Europe/Paris",
	"es": "Europe/Madrid",
	"it": "Europe/Rome",
	"us": "America/New_York",
	"ca": "America/Toronto",
	"br": "America/Sao_Paulo",
	"in": "Asia/Kolkata",
	"sg": "Asia/Singapore",
	"jp": "Asia/Tokyo",
	"au": "Australia/Sydney",
}

var timezoneByAbbreviation = map[string]string{
	"pst":  "America/Los_Angeles",
	"pdt":  "America/Los_Angeles",
	"est":  "America/New_York",
	"edt":  "America/New_York",
	"cst":  "America/Chicago",
	"cdt":  "America/Chicago",
	"cet":  "Europe/Paris",
	"cest": "Europe/Paris",
	"bst":  "Europe/London",
	"ist":  "Asia/Kolkata",
	"jst":  "Asia/Tokyo",
	"aest": "Australia/Sydney",
}

// NormalizeTimezone resolves user input (IANA name, abbreviation, city or
// country code) into a canonical IANA timezone name.
func NormalizeTimezone(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("timezone cannot be empty")
	}
	if strings.EqualFold(trimmed, "UTC") {
		return "UTC", nil
	}

	if isValidTimezone(trimmed) {
		if needsCanonicalCase(trimmed) {
			if candidate := sanitizeTimezone(trimmed); isValidTimezone(candidate) {
				return candidate, nil
			}
		}
		return trimmed, nil
	}
	if candidate := sanitizeTimezone(trimmed); isValidTimezone(candidate) {
		return candidate, nil
	}

	lower := strings.ToLower(trimmed)
	if tz, ok := timezoneByAbbreviation[lower]; ok {
		return tz, nil
	}
	if tz, ok := countryCodeTimezones[lower]; ok {
		return tz, nil
	}
	for keyword, tz := range locationKeywordTimezones {
		if strings.Contains(lower, keyword) {
			return tz, nil
		}
	}
	return "", errors.Newf("unknown timezone: %s", input)
}

// ValidateTimezone accepts anything NormalizeTimezone can resolve.
func ValidateTimezone(tz string) error {
	_, err := NormalizeTimezone(tz)
	return err
}

// Resolve returns the location for a configured timezone. Empty means the
// host zone, falling back to time.Local when it cannot be named.
func Resolve(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		name, err := DetectLocalTimezone()
		if err != nil {
			return time.Local, nil
		}
		tz = name
	}
	name, err := NormalizeTimezone(tz)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %s", name)
	}
	return loc, nil
}

// DetectLocalTimezone attempts to determine the host operating system timezone.
func DetectLocalTimezone() (string, error) {
	if tz := os.Getenv("TZ"); tz != "" && isValidTimezone(tz) {
		return tz, nil
	}
	if name := time.Now().Location().String(); name != "" && name != "Local" && isValidTimezone(name) {
		return name, nil
	}
	if data, err := os.ReadFile("/etc/timezone"); err == nil {
		if tz := sanitizeTimezone(string(data)); isValidTimezone(tz) {
			return tz, nil
		}
	}
	if tz, err := readZoneinfoSymlink("/etc/localtime"); err == nil {
		return tz, nil
	}
	return "", errors.New("could not detect local timezone: tried TZ, time.Local, /etc/timezone, /etc/localtime")
}

func readZoneinfoSymlink(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	idx := strings.Index(resolved, "zoneinfo")
	if idx == -1 {
		return "", errors.New("zoneinfo segment not found")
	}
	candidate := strings.TrimPrefix(resolved[idx+len("zoneinfo"):], string(filepath.Separator))
	candidate = filepath.ToSlash(candidate)
	if isValidTimezone(candidate) {
		return candidate, nil
	}
	return "", errors.Newf("invalid timezone %q from %s", candidate, path)
}

// sanitizeTimezone title-cases each path segment: "america/new york" -> "America/New_York".
func sanitizeTimezone(tz string) string {
	trimmed := strings.Trim(strings.TrimSpace(tz), "\"'")
	trimmed = strings.ReplaceAll(trimmed, " ", "_")
	parts := strings.Split(trimmed, "/")
	for i, part := range parts {
		words := strings.Split(part, "_")
		for j, w := range words {
			words[j] = title(w)
		}
		parts[i] = strings.Join(words, "_")
	}
	return strings.Join(parts, "/")
}

func title(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func isValidTimezone(tz string) bool {
	if tz == "" || tz == "Local" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// needsCanonicalCase reports names like "europe/berlin" that LoadLocation
// accepts on case-insensitive filesystems. "America/Port_of_Spain" is left alone.
func needsCanonicalCase(tz string) bool {
	if strings.ToLower(tz) == tz {
		return true
	}
	for _, part := range strings.Split(tz, "/") {
		if part != "" && part[0] >= 'a' && part[0] <= 'z' {
			return true
		}
	}
	return false
}
