package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/edubridge/portalsync/pkg/portal"
)

// ScheduleInput is the raw material for timetable extraction.
type ScheduleInput struct {
	// HTML is the timetable page body.
	HTML string
	// Semester is an optional caller-supplied term label; it wins over
	// anything found in the page.
	Semester string
	// PageURL is the request URL, used as the last-resort term source.
	PageURL string
}

// ScheduleParser extracts the weekly timetable from portal HTML. Two
// implementations exist, one walking the DOM and one built on regular
// expressions; their output contract is identical and both are exercised
// by one shared test suite.
type ScheduleParser interface {
	ParseSchedule(in ScheduleInput) (*Schedule, error)
}

// NewScheduleParser returns the parser for the given strategy name,
// "dom" or "regex". Unknown names fall back to the DOM parser.
func NewScheduleParser(strategy string) ScheduleParser {
	if strategy == "regex" {
		return &regexScheduleParser{}
	}
	return &domScheduleParser{}
}

// sectionSpan maps one timetable data row to its class sections.
type sectionSpan struct {
	start int
	end   int
}

// rowSections is the fixed mapping of data-row index to sections. Rows
// beyond this table carry no course cells.
var rowSections = []sectionSpan{
	{1, 2}, {3, 4}, {5, 6}, {7, 8}, {9, 10}, {11, 12},
}

const maxWeekday = 7

// remarksMarker denotes a footnote row that does not count as a data row.
const remarksMarker = "备注"

// weekdayHeaderMarker appears in the grid's column-header row. Header rows
// carry no course-content containers and do not count as data rows.
const weekdayHeaderMarker = "星期"

// timeVocabulary marks cells that label a row's time slot rather than a
// weekday column.
var timeVocabulary = []string{"节", "上午", "下午", "中午", "晚上", "早晨", "时间", "AM", "PM"}

func isTimeLabelText(text string) bool {
	for _, v := range timeVocabulary {
		if strings.Contains(text, v) {
			return true
		}
	}
	return false
}

func isRemarksRow(text string) bool {
	return strings.Contains(text, remarksMarker)
}

// courseFragment is one raw course block inside a weekday cell, before
// week decoding and merging.
type courseFragment struct {
	name      string
	teacher   string
	location  string
	weekRange string
	weekday   int
	sections  sectionSpan
}

// mergeFragments collapses fragments that describe the same course at the
// same time and place into one entry, unioning their week sets. Courses
// spanning multiple grid cells with distinct week ranges legitimately
// produce several fragments.
func mergeFragments(fragments []courseFragment) []CourseEntry {
	type key struct {
		name     string
		weekday  int
		start    int
		end      int
		teacher  string
		location string
	}

	order := make([]key, 0, len(fragments))
	merged := make(map[key]*CourseEntry, len(fragments))

	for _, f := range fragments {
		k := key{f.name, f.weekday, f.sections.start, f.sections.end, f.teacher, f.location}
		weeks := ParseWeekRange(f.weekRange)

		if entry, ok := merged[k]; ok {
			entry.Weeks = unionWeeks(entry.Weeks, weeks)
			if f.weekRange != "" && !strings.Contains(entry.WeekRange, f.weekRange) {
				entry.WeekRange = strings.TrimPrefix(entry.WeekRange+","+f.weekRange, ",")
			}
			continue
		}

		merged[k] = &CourseEntry{
			Name:         f.name,
			Teacher:      f.teacher,
			Location:     f.location,
			Weekday:      f.weekday,
			StartSection: f.sections.start,
			EndSection:   f.sections.end,
			WeekRange:    f.weekRange,
			Weeks:        weeks,
		}
		order = append(order, k)
	}

	entries := make([]CourseEntry, 0, len(order))
	for _, k := range order {
		entries = append(entries, *merged[k])
	}
	return entries
}

func unionWeeks(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	for _, w := range a {
		seen[w] = true
	}
	for _, w := range b {
		seen[w] = true
	}
	out := make([]int, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Ints(out)
	return out
}

var (
	currentWeekRe  = regexp.MustCompile(`第\s*(\d+)\s*周`)
	inlineTermRe   = regexp.MustCompile(`学年学期[：:]\s*(\d{4}-\d{4}-\d)`)
	termShapedRe   = regexp.MustCompile(`\d{4}-\d{4}-\d`)
	selectedOptRe  = regexp.MustCompile(`(?is)<option[^>]*\bselected[^>]*\bvalue\s*=\s*["']([^"']*)["']|<option[^>]*\bvalue\s*=\s*["']([^"']*)["'][^>]*\bselected`)
	optionValueRe  = regexp.MustCompile(`(?is)<option[^>]*\bvalue\s*=\s*["']([^"']*)["'][^>]*>([^<]*)`)
	selectBlockRe  = regexp.MustCompile(`(?is)<select[^>]*\bid\s*=\s*["']xnxq01id["'][^>]*>(.*?)</select>`)
	selectedFlagRe = regexp.MustCompile(`(?i)\bselected\b`)
)

// extractCurrentWeek finds a 第N周 numeral anywhere in the page text.
// Returns 0 when absent.
func extractCurrentWeek(html string) int {
	m := currentWeekRe.FindStringSubmatch(html)
	if m == nil {
		return 0
	}
	week, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return week
}

// resolveSemester picks the term label in priority order: the caller's
// explicit value, an inline 学年学期 annotation, the selected dropdown
// option, then a term-shaped token in the request URL. Any resolution
// failure yields the empty string.
func resolveSemester(in ScheduleInput) string {
	if in.Semester != "" {
		return in.Semester
	}
	if m := inlineTermRe.FindStringSubmatch(in.HTML); m != nil {
		return m[1]
	}
	if block := selectBlockRe.FindStringSubmatch(in.HTML); block != nil {
		if m := selectedOptRe.FindStringSubmatch(block[1]); m != nil {
			if m[1] != "" {
				return m[1]
			}
			return m[2]
		}
	}
	if u, err := url.Parse(in.PageURL); err == nil {
		if v := u.Query().Get("xnxq01id"); termShapedRe.MatchString(v) {
			return v
		}
	}
	return ""
}

// checkNotLoginPage guards every extractor against the portal's silent
// session-expiry behavior.
func checkNotLoginPage(html string) error {
	if portal.LooksLikeLoginPage(html) {
		return fmt.Errorf("extracting portal page: %w", ErrLoginPage)
	}
	return nil
}
