package auth

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ParseExpirationDuration parses a token expiry string into an expiration
// time. Supported: "never" or "" (nil, no expiry), any Go duration
// ("24h", "30m"), "30d"/"2w" style day/week counts, and "mm/dd/yyyy"
// dates with optional "HH:MM".
func ParseExpirationDuration(expiresIn string) (*time.Time, error) {
	if expiresIn == "" || expiresIn == "never" {
		return nil, nil
	}

	if dur, err := time.ParseDuration(expiresIn); err == nil {
		t := time.Now().Add(dur)
		return &t, nil
	}

	dateFormats := []string{
		"01/02/2006 15:04",
		"01/02/2006",
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, expiresIn); err == nil {
			if t.Before(time.Now()) {
				return nil, fmt.Errorf("expiration date must be in the future: %s", expiresIn)
			}
			return &t, nil
		}
	}

	re := regexp.MustCompile(`^(\d+)([dwh])$`)
	matches := re.FindStringSubmatch(expiresIn)
	if len(matches) != 3 {
		return nil, fmt.Errorf("invalid expiration format: %s (use 'never', '30d', '24h', '12/25/2026', or any Go duration)", expiresIn)
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid number in expiration: %s", expiresIn)
	}

	var dur time.Duration
	switch matches[2] {
	case "d":
		dur = time.Duration(num) * 24 * time.Hour
	case "w":
		dur = time.Duration(num) * 7 * 24 * time.Hour
	case "h":
		dur = time.Duration(num) * time.Hour
	default:
		return nil, fmt.Errorf("unknown unit in expiration: %s", matches[2])
	}

	t := time.Now().Add(dur)
	return &t, nil
}
