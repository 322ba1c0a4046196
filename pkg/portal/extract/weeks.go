package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultFirstWeek = 1
	defaultLastWeek  = 20
)

var (
	bracketRe   = regexp.MustCompile(`\[[^\]]*\]|［[^］]*］`)
	parenRe     = regexp.MustCompile(`\([^)]*\)|（[^）]*）`)
	weekRangeRe = regexp.MustCompile(`^(\d+)\s*[-－—~]\s*(\d+)$`)
)

// ParseWeekRange decodes a portal week-range label into an explicit set of
// week numbers, e.g. "2-16(单)周" or "[01-02节]2,4-7,9-16周".
//
// Bracketed section annotations and the literal 周 marker are stripped;
// 单/双 modifiers restrict the expansion to odd/even weeks. An absent or
// unparsable label yields the conservative default of weeks 1-20.
func ParseWeekRange(label string) []int {
	// Bracketed section annotations go first: a 单/双 inside them, e.g.
	// "[单周实验]", annotates the section and must not filter the weeks.
	// The modifier itself legitimately appears bare or in parentheses.
	s := bracketRe.ReplaceAllString(label, "")
	oddOnly := strings.Contains(s, "单")
	evenOnly := strings.Contains(s, "双")
	s = parenRe.ReplaceAllString(s, "")
	s = strings.NewReplacer("第", "", "周", "", "week", "", "Week", "",
		"单", "", "双", "", " ", "").Replace(s)
	s = strings.ReplaceAll(s, "，", ",")

	seen := make(map[int]bool)
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		lo, hi, ok := parseWeekToken(token)
		if !ok {
			continue
		}
		for w := lo; w <= hi; w++ {
			if w <= 0 {
				continue
			}
			if oddOnly && w%2 == 0 {
				continue
			}
			if evenOnly && w%2 != 0 {
				continue
			}
			seen[w] = true
		}
	}

	if len(seen) == 0 {
		return defaultWeeks()
	}

	weeks := make([]int, 0, len(seen))
	for w := range seen {
		weeks = append(weeks, w)
	}
	sort.Ints(weeks)
	return weeks
}

func parseWeekToken(token string) (lo, hi int, ok bool) {
	if m := weekRangeRe.FindStringSubmatch(token); m != nil {
		lo, _ = strconv.Atoi(m[1])
		hi, _ = strconv.Atoi(m[2])
		if lo > hi {
			lo, hi = hi, lo
		}
		return lo, hi, true
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, 0, false
	}
	return n, n, true
}

func defaultWeeks() []int {
	weeks := make([]int, 0, defaultLastWeek)
	for w := defaultFirstWeek; w <= defaultLastWeek; w++ {
		weeks = append(weeks, w)
	}
	return weeks
}
