package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseSemesters extracts the term dropdown options from any portal page
// that embeds the xnxq01id selector. A page without the selector yields an
// empty list, not an error.
func ParseSemesters(html string) ([]SemesterOption, error) {
	if err := checkNotLoginPage(html); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil
	}

	var options []SemesterOption
	doc.Find("select#xnxq01id option").Each(func(_ int, opt *goquery.Selection) {
		value, _ := opt.Attr("value")
		label := strings.TrimSpace(opt.Text())
		if value == "" && label == "" {
			return
		}
		if value == "" {
			value = label
		}
		_, selected := opt.Attr("selected")
		options = append(options, SemesterOption{
			Value:    value,
			Label:    label,
			Selected: selected,
		})
	})

	return options, nil
}
