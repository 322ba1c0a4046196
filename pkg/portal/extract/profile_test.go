package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfileInlineLabels(t *testing.T) {
	page := `<html><body>
<table id="xjkpTable">
<tr><td>学号：2021001</td><td>姓名：张三</td></tr>
<tr><td>院系：经济学院</td><td>专业：金融学</td></tr>
<tr><td>班级：金融2101</td><td>入学时间：2021-09</td></tr>
<tr><td>培养层次：本科</td></tr>
</table>
</body></html>`

	profile, err := ParseProfile(page)
	require.NoError(t, err)
	assert.Equal(t, "2021001", profile.StudentID)
	assert.Equal(t, "张三", profile.Name)
	assert.Equal(t, "经济学院", profile.College)
	assert.Equal(t, "金融学", profile.Major)
	assert.Equal(t, "金融2101", profile.ClassName)
	assert.Equal(t, "2021-09", profile.EnrollmentYear)
	assert.Equal(t, "本科", profile.StudyLevel)
}

func TestParseProfileNeighborCells(t *testing.T) {
	// Some portal revisions put labels and values in adjacent cells.
	page := `<html><body>
<table>
<tr><th>学号</th><td>2021001</td><th>姓名</th><td>张三</td></tr>
<tr><th>学院</th><td>会计学院</td></tr>
</table>
</body></html>`

	profile, err := ParseProfile(page)
	require.NoError(t, err)
	assert.Equal(t, "2021001", profile.StudentID)
	assert.Equal(t, "张三", profile.Name)
	assert.Equal(t, "会计学院", profile.College)
}

func TestParseProfileHalfWidthColon(t *testing.T) {
	page := `<html><body><table>
<tr><td>学号: 2021001</td><td>姓名: 张三</td></tr>
</table></body></html>`

	profile, err := ParseProfile(page)
	require.NoError(t, err)
	assert.Equal(t, "2021001", profile.StudentID)
	assert.Equal(t, "张三", profile.Name)
}

func TestParseProfileEmptyPage(t *testing.T) {
	profile, err := ParseProfile(`<html><body><p>无个人信息</p></body></html>`)
	require.NoError(t, err)
	assert.Empty(t, profile.StudentID)
	assert.Empty(t, profile.Name)
}

func TestParseProfileLoginPage(t *testing.T) {
	page := `<html><body><form action="/jsxsd/xk/LoginToXk">
<input name="userAccount"/><input name="userPassword"/></form></body></html>`

	_, err := ParseProfile(page)
	assert.ErrorIs(t, err, ErrLoginPage)
}
