// Package rating converts explicit critic ratings (letter grades, stars and
// X/Y fractions) into scores on the 0-100 scale.
package rating

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// letterGrades is the fixed letter-grade conversion table.
var letterGrades = map[string]int{
	"A+": 98,
	"A":  95,
	"A-": 91,
	"B+": 87,
	"B":  83,
	"B-": 79,
	"C+": 75,
	"C":  70,
	"C-": 65,
	"D+": 58,
	"D":  52,
	"D-": 45,
	"F":  25,
}

// starScores is the fixed five-star conversion table, keyed by half stars.
var starScores = map[int]int{
	10: 100, // 5
	9:  90,  // 4.5
	8:  80,  // 4
	7:  72,  // 3.5
	6:  63,  // 3
	5:  55,  // 2.5
	4:  45,  // 2
	3:  35,  // 1.5
	2:  25,  // 1
	1:  15,  // 0.5
	0:  0,
}

var (
	gradeRe      = regexp.MustCompile(`(?i)^([A-DF])\s*([+-]|plus|minus)?$`)
	gradeRangeRe = regexp.MustCompile(`(?i)^([A-DF][+-]?)\s*(?:/|to|–)\s*([A-DF][+-]?)$`)
	fractionRe   = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(?:/|out of)\s*(\d+(?:\.\d+)?)(?:\s*stars?)?$`)
	starCountRe  = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*stars?$`)
	starGlyphRe  = regexp.MustCompile(`^([★*]+)\s*(½|1/2)?\s*☆*$`)
)

// Parse converts a raw explicit rating into a score. It accepts letter
// grades ("B+", "A minus"), grade ranges ("B+/A-"), star glyphs ("★★★½"),
// star counts ("3.5 stars", "3 out of 4 stars") and fractions ("7/10").
// The second return value is false when raw is not a recognizable rating.
func Parse(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	if m := gradeRangeRe.FindStringSubmatch(s); m != nil {
		a, okA := letterGrades[strings.ToUpper(m[1])]
		b, okB := letterGrades[strings.ToUpper(m[2])]
		if okA && okB {
			return roundHalfUp(float64(a+b) / 2), true
		}
	}

	if score, ok := parseGrade(s); ok {
		return score, true
	}

	lower := strings.ToLower(s)

	if m := fractionRe.FindStringSubmatch(lower); m != nil {
		num, _ := strconv.ParseFloat(m[1], 64)
		den, _ := strconv.ParseFloat(m[2], 64)
		return fromFraction(num, den)
	}

	if m := starCountRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		return fromFraction(n, 5)
	}

	if m := starGlyphRe.FindStringSubmatch(s); m != nil {
		halves := 2 * len([]rune(m[1]))
		if m[2] != "" {
			halves++
		}
		return fromStars(halves)
	}

	return 0, false
}

func parseGrade(s string) (int, bool) {
	m := gradeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	key := strings.ToUpper(m[1])
	switch strings.ToLower(m[2]) {
	case "+", "plus":
		key += "+"
	case "-", "minus":
		key += "-"
	}
	score, ok := letterGrades[key]
	return score, ok
}

// fromFraction maps num/den onto 0-100. Five-star scales go through the star
// table so "3.5/5" and "★★★½" agree.
func fromFraction(num, den float64) (int, bool) {
	if den <= 0 || num < 0 || num > den {
		return 0, false
	}
	if den == 5 {
		halves := num * 2
		if halves == math.Trunc(halves) {
			return fromStars(int(halves))
		}
	}
	return roundHalfUp(num / den * 100), true
}

func fromStars(halves int) (int, bool) {
	score, ok := starScores[halves]
	return score, ok
}

func roundHalfUp(f float64) int {
	return int(math.Floor(f + 0.5))
}

// LetterGrade returns the table value of a single letter grade.
func LetterGrade(grade string) (int, bool) {
	score, ok := letterGrades[strings.ToUpper(strings.TrimSpace(grade))]
	return score, ok
}
