package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGrades(t *testing.T) {
	page := `<html><body>
<table id="dataList">
<tr><th>序号</th><th>课程名称</th><th>学分</th><th>成绩</th><th>绩点</th></tr>
<tr><td>1</td><td>高等数学</td><td>4</td><td>92</td><td>4.2</td></tr>
<tr><td>2</td><td>大学英语</td><td>3</td><td>85</td><td>3.5</td></tr>
</table>
</body></html>`

	table, err := ParseGrades(page)
	require.NoError(t, err)
	assert.Equal(t, []string{"序号", "课程名称", "学分", "成绩", "绩点"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "高等数学", table.Rows[0]["课程名称"])
	assert.Equal(t, "92", table.Rows[0]["成绩"])
	assert.Equal(t, "3.5", table.Rows[1]["绩点"])
}

func TestParseGradesEmptyResult(t *testing.T) {
	page := `<html><body>
<table id="dataList">
<tr><th>课程名称</th><th>成绩</th></tr>
<tr><td colspan="2">未查询到数据</td></tr>
</table>
</body></html>`

	table, err := ParseGrades(page)
	require.NoError(t, err)
	assert.Equal(t, []string{"课程名称", "成绩"}, table.Headers)
	assert.Empty(t, table.Rows)
}

func TestParseGradesMissingTable(t *testing.T) {
	table, err := ParseGrades(`<html><body><p>nothing here</p></body></html>`)
	require.NoError(t, err)
	assert.Empty(t, table.Headers)
	assert.Empty(t, table.Rows)
}

func TestParseGradesExtraCells(t *testing.T) {
	// Cells beyond the header count are dropped rather than invented.
	page := `<html><body>
<table id="dataList">
<tr><th>课程名称</th><th>成绩</th></tr>
<tr><td>高等数学</td><td>92</td><td>stray</td></tr>
</table>
</body></html>`

	table, err := ParseGrades(page)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Len(t, table.Rows[0], 2)
}

func TestParseGradesLoginPage(t *testing.T) {
	page := `<html><body><form action="/jsxsd/xk/LoginToXk">
<input name="userAccount"/><input name="userPassword"/></form></body></html>`

	_, err := ParseGrades(page)
	assert.ErrorIs(t, err, ErrLoginPage)
}
