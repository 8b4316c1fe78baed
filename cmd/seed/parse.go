package main

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	xpPattern     = regexp.MustCompile(`\(([^)]+)\)`)
	numberPattern = regexp.MustCompile(`^(\d+)`)
	savePattern   = regexp.MustCompile(`(?i)(\w{3})\s*([+-]\d+)`)
)

// parseChallengeRating converts a stat-block challenge string like
// "1/2 (100 XP)" into its numeric rating and XP value.
func parseChallengeRating(challenge string) (cr float64, xp int) {
	fields := strings.Fields(challenge)
	if len(fields) == 0 {
		return 0, 0
	}

	switch crPart := fields[0]; crPart {
	case "1/8":
		cr = 0.125
	case "1/4":
		cr = 0.25
	case "1/2":
		cr = 0.5
	default:
		cr, _ = strconv.ParseFloat(crPart, 64)
	}

	if m := xpPattern.FindStringSubmatch(challenge); m != nil {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m[1])
		xp, _ = strconv.Atoi(digits)
	}
	return cr, xp
}

// extractArmorClass pulls the leading number out of a string like
// "15 (natural armor)".
func extractArmorClass(ac string) *int {
	m := numberPattern.FindStringSubmatch(ac)
	if m == nil {
		return nil
	}
	v, _ := strconv.Atoi(m[1])
	return &v
}

// extractHitPoints splits "45 (6d10+12)" into average hit points and the
// hit dice expression.
func extractHitPoints(hp string) (*int, string) {
	var points *int
	if m := numberPattern.FindStringSubmatch(hp); m != nil {
		v, _ := strconv.Atoi(m[1])
		points = &v
	}
	dice := ""
	if m := xpPattern.FindStringSubmatch(hp); m != nil {
		dice = m[1]
	}
	return points, dice
}

// parseSavingThrows converts "Dex +5, Con +3" into a JSON object keyed by
// lowercase ability abbreviation. Returns "" when nothing parses.
func parseSavingThrows(saves string) string {
	if saves == "" {
		return ""
	}
	throws := map[string]string{}
	for _, part := range strings.Split(saves, ",") {
		if m := savePattern.FindStringSubmatch(strings.TrimSpace(part)); m != nil {
			throws[strings.ToLower(m[1])] = m[2]
		}
	}
	if len(throws) == 0 {
		return ""
	}
	b, _ := json.Marshal(throws)
	return string(b)
}
