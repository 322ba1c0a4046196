package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// emptyResultMarker appears when the grade query matched nothing.
const emptyResultMarker = "未查询到数据"

// ParseGrades extracts the grade query result table. The first row
// supplies the column headers; every following row becomes a header→text
// map so schema drift between portal revisions never loses data. A page
// without the table, or carrying the portal's explicit empty-result
// marker, yields an empty table.
func ParseGrades(html string) (*GradeTable, error) {
	if err := checkNotLoginPage(html); err != nil {
		return nil, err
	}

	table := &GradeTable{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return table, nil
	}

	grid := doc.Find("table#dataList").First()
	if grid.Length() == 0 {
		return table, nil
	}

	grid.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				table.Headers = append(table.Headers, strings.TrimSpace(cell.Text()))
			})
			return
		}

		text := strings.TrimSpace(row.Text())
		if text == "" || strings.Contains(text, emptyResultMarker) {
			return
		}

		record := make(map[string]string, len(table.Headers))
		row.Find("td").Each(func(j int, cell *goquery.Selection) {
			if j >= len(table.Headers) {
				return
			}
			record[table.Headers[j]] = strings.TrimSpace(cell.Text())
		})
		if len(record) > 0 {
			table.Rows = append(table.Rows, record)
		}
	})

	return table, nil
}
