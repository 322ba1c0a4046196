package extract

import (
	"regexp"
	"strings"
)

// regexScheduleParser reproduces the grid walk without a structured HTML
// parser. The contract (row/column mapping, delimiter handling, week
// decoding, merge behavior, defaults) is identical to the DOM parser.
type regexScheduleParser struct{}

var (
	gridRe      = regexp.MustCompile(`(?is)<table[^>]*\bid\s*=\s*["']kbtable["'].*?</table>`)
	rowRe       = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	cellRe      = regexp.MustCompile(`(?is)<t[dh][^>]*>(.*?)</t[dh]>`)
	contentRe   = regexp.MustCompile(`(?is)<div[^>]*\bclass\s*=\s*["'](?:[^"']*\s)?kbcontent(?:\s[^"']*)?["'][^>]*>(.*?)</div>`)
)

func (p *regexScheduleParser) ParseSchedule(in ScheduleInput) (*Schedule, error) {
	if err := checkNotLoginPage(in.HTML); err != nil {
		return nil, err
	}

	sched := &Schedule{
		Semester:    resolveSemester(in),
		CurrentWeek: extractCurrentWeek(in.HTML),
	}

	grid := gridRe.FindString(in.HTML)
	if grid == "" {
		return sched, nil
	}

	var fragments []courseFragment
	dataRow := 0

	for _, rowMatch := range rowRe.FindAllStringSubmatch(grid, -1) {
		rowHTML := rowMatch[1]
		rowText := stripTags(rowHTML)
		if isRemarksRow(rowText) {
			continue
		}
		if !contentRe.MatchString(rowHTML) && strings.Contains(rowText, weekdayHeaderMarker) {
			continue
		}
		rowIndex := dataRow
		dataRow++
		if rowIndex >= len(rowSections) {
			continue
		}
		sections := rowSections[rowIndex]

		weekday := 0
		for _, cellMatch := range cellRe.FindAllStringSubmatch(rowHTML, -1) {
			cellHTML := cellMatch[1]
			content := contentRe.FindStringSubmatch(cellHTML)
			if content == nil && isTimeLabelText(stripTags(cellHTML)) {
				continue
			}

			weekday++
			if weekday > maxWeekday {
				break
			}
			if content == nil {
				continue
			}

			for _, block := range splitCourseBlocks(content[1]) {
				if frag, ok := parseCourseBlock(block, weekday, sections); ok {
					fragments = append(fragments, frag)
				}
			}
		}
	}

	sched.Courses = mergeFragments(fragments)
	return sched, nil
}
