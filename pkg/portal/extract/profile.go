package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// profileLabels maps Profile fields to the portal labels that carry them.
// Several labels vary between portal revisions, so each field accepts
// synonyms in priority order.
var profileLabels = map[string][]string{
	"studentId":      {"学号"},
	"name":           {"姓名"},
	"college":        {"院系", "学院", "所在院系"},
	"major":          {"专业", "专业名称"},
	"className":      {"班级", "行政班"},
	"enrollmentYear": {"入学年份", "入学时间", "年级"},
	"studyLevel":     {"学习层次", "培养层次", "层次"},
}

// ParseProfile extracts the personal information page into a Profile.
// Fields the page does not carry stay empty; a page without the info table
// yields an empty Profile, not an error.
func ParseProfile(html string) (*Profile, error) {
	if err := checkNotLoginPage(html); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return &Profile{}, nil
	}

	fields := collectLabeledValues(doc)

	return &Profile{
		StudentID:      pickLabeled(fields, "studentId"),
		Name:           pickLabeled(fields, "name"),
		College:        pickLabeled(fields, "college"),
		Major:          pickLabeled(fields, "major"),
		ClassName:      pickLabeled(fields, "className"),
		EnrollmentYear: pickLabeled(fields, "enrollmentYear"),
		StudyLevel:     pickLabeled(fields, "studyLevel"),
	}, nil
}

// collectLabeledValues walks every table cell and records label→value
// pairs, both from inline 标签：值 cells and from label-cell/value-cell
// neighbors.
func collectLabeledValues(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)

	put := func(label, value string) {
		label = strings.TrimSpace(strings.TrimRight(label, ":："))
		value = strings.TrimSpace(value)
		if label == "" || value == "" {
			return
		}
		if _, exists := fields[label]; !exists {
			fields[label] = value
		}
	}

	doc.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
		text := strings.TrimSpace(cell.Text())
		if text == "" {
			return
		}
		if i := strings.IndexAny(text, ":："); i >= 0 {
			_, size := utf8.DecodeRuneInString(text[i:])
			put(text[:i], text[i+size:])
			return
		}
		// A bare label cell takes its value from the next cell.
		if next := cell.Next(); next.Length() > 0 {
			put(text, next.Text())
		}
	})

	return fields
}

func pickLabeled(fields map[string]string, key string) string {
	for _, label := range profileLabels[key] {
		for k, v := range fields {
			if strings.Contains(k, label) {
				return v
			}
		}
	}
	return ""
}
