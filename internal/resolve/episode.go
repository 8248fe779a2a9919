package resolve

import (
	"regexp"
	"strconv"
)

var (
	episodeNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`第\s*(\d{1,4})\s*[話回]`),
		regexp.MustCompile(`#\s*(\d{1,4})`),
		regexp.MustCompile(`(?i)\b(?:episode|ep\.?)\s*(\d{1,4})\b`),
	}
	episodeKanjiPattern = regexp.MustCompile(`第([〇一二三四五六七八九十百]+)[話回]`)
	partMarkerPattern   = regexp.MustCompile(`(?i)(?:\bpart\s*\d+|パート\s*\d+|[前中後]編|[ab]\s*パート)`)
)

// ExtractEpisodeNumber finds an episode number in a normalized title.
func ExtractEpisodeNumber(title string) (int, bool) {
	for _, pattern := range episodeNumberPatterns {
		if m := pattern.FindStringSubmatch(title); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n, true
			}
		}
	}
	if m := episodeKanjiPattern.FindStringSubmatch(title); m != nil {
		if n := parseKanjiNumber(m[1]); n > 0 {
			return n, true
		}
	}
	return 0, false
}

// HasPartMarker reports whether a title marks one part of a split upload.
func HasPartMarker(title string) bool {
	return partMarkerPattern.MatchString(title)
}

var kanjiDigits = map[rune]int{
	'〇': 0, '一': 1, '二': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// parseKanjiNumber handles numerals below 1000 such as 十二 or 二十三.
func parseKanjiNumber(s string) int {
	total, digit := 0, 0
	for _, r := range s {
		switch r {
		case '百':
			if digit == 0 {
				digit = 1
			}
			total += digit * 100
			digit = 0
		case '十':
			if digit == 0 {
				digit = 1
			}
			total += digit * 10
			digit = 0
		default:
			v, ok := kanjiDigits[r]
			if !ok {
				return 0
			}
			digit = digit*10 + v
		}
	}
	return total + digit
}
