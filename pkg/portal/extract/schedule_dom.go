package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// domScheduleParser walks the timetable grid with a structured HTML parser.
type domScheduleParser struct{}

func (p *domScheduleParser) ParseSchedule(in ScheduleInput) (*Schedule, error) {
	if err := checkNotLoginPage(in.HTML); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
	if err != nil {
		// Unreadable markup degrades to an empty schedule.
		return &Schedule{Semester: resolveSemester(in)}, nil
	}

	sched := &Schedule{
		Semester:    resolveSemester(in),
		CurrentWeek: extractCurrentWeek(in.HTML),
	}

	grid := doc.Find("table#kbtable").First()
	if grid.Length() == 0 {
		// Some terms genuinely have no published timetable.
		return sched, nil
	}

	var fragments []courseFragment
	dataRow := 0

	grid.Find("tr").Each(func(_ int, row *goquery.Selection) {
		text := row.Text()
		if isRemarksRow(text) {
			return
		}
		if row.Find("div.kbcontent").Length() == 0 && strings.Contains(text, weekdayHeaderMarker) {
			return
		}
		rowIndex := dataRow
		dataRow++
		if rowIndex >= len(rowSections) {
			return
		}
		sections := rowSections[rowIndex]

		weekday := 0
		row.Find("td, th").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			content := cell.Find("div.kbcontent")
			if content.Length() == 0 && isTimeLabelText(cell.Text()) {
				return true // time-label cell, no weekday consumed
			}

			weekday++
			if weekday > maxWeekday {
				return false
			}
			if content.Length() == 0 {
				return true
			}

			inner, err := content.First().Html()
			if err != nil {
				return true
			}
			for _, block := range splitCourseBlocks(inner) {
				if frag, ok := parseCourseBlock(block, weekday, sections); ok {
					fragments = append(fragments, frag)
				}
			}
			return true
		})
	})

	sched.Courses = mergeFragments(fragments)
	return sched, nil
}
