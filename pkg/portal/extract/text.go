package extract

import (
	"regexp"
	"strings"
)

var (
	tagRe        = regexp.MustCompile(`(?s)<[^>]*>`)
	brRe         = regexp.MustCompile(`(?i)<br\s*/?>`)
	whitespaceRe = regexp.MustCompile(`[\s\x{00a0}]+`)

	// courseDelimiterRe separates multiple courses inside one timetable
	// cell: a run of dashes, possibly wrapped in line breaks.
	courseDelimiterRe = regexp.MustCompile(`(?i)(?:<br\s*/?>|\s)*-{5,}(?:<br\s*/?>|\s)*`)

	// decoratedSpanRe matches the styled span the portal wraps real course
	// attributes in; fragments without one are blank placeholders.
	decoratedSpanRe = regexp.MustCompile(`(?i)<(?:font|span)\b`)

	// titledSpanRe captures title-attributed spans carrying course
	// attributes (teacher, weeks, room).
	titledSpanRe = regexp.MustCompile(`(?is)<(?:font|span)\b[^>]*\btitle\s*=\s*["']([^"']*)["'][^>]*>(.*?)</(?:font|span)>`)
)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// stripTags reduces an HTML fragment to its visible text.
func stripTags(html string) string {
	text := tagRe.ReplaceAllString(html, " ")
	text = entityReplacer.Replace(text)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// splitCourseBlocks splits a cell's inner markup into per-course fragments
// and drops blanks and undecorated placeholders.
func splitCourseBlocks(inner string) []string {
	var blocks []string
	for _, part := range courseDelimiterRe.Split(inner, -1) {
		if stripTags(part) == "" {
			continue
		}
		if !decoratedSpanRe.MatchString(part) {
			continue
		}
		blocks = append(blocks, part)
	}
	return blocks
}

// parseCourseBlock extracts one course's attributes from a fragment of
// cell markup. A fragment yielding no course name is reported via ok=false.
func parseCourseBlock(block string, weekday int, sections sectionSpan) (courseFragment, bool) {
	frag := courseFragment{weekday: weekday, sections: sections}

	for _, m := range titledSpanRe.FindAllStringSubmatch(block, -1) {
		title := strings.ToLower(m[1])
		text := stripTags(m[2])
		switch {
		case strings.Contains(title, "老师") || strings.Contains(title, "teacher"):
			frag.teacher = text
		case strings.Contains(title, "周") || strings.Contains(title, "week"):
			frag.weekRange = text
		case strings.Contains(title, "教室") || strings.Contains(title, "room"):
			frag.location = text
		}
	}

	frag.name = courseName(block)
	if frag.name == "" {
		return courseFragment{}, false
	}
	return frag, true
}

// courseName takes the first text run before any nested tag, falling back
// to the first text run after a line break.
func courseName(block string) string {
	if i := strings.IndexByte(block, '<'); i >= 0 {
		if name := stripTags(block[:i]); name != "" {
			return name
		}
	} else if name := stripTags(block); name != "" {
		return name
	}

	for _, seg := range brRe.Split(block, -1)[1:] {
		// Only the leading text of the segment counts; titled spans later
		// in the segment belong to other attributes.
		if i := strings.IndexByte(seg, '<'); i >= 0 {
			seg = seg[:i]
		}
		if name := stripTags(seg); name != "" {
			return name
		}
	}
	return ""
}
