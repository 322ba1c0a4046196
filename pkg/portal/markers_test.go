package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLoginLocation(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     bool
	}{
		{"login endpoint", "/jsxsd/xk/LoginToXk", true},
		{"login flow prefix", "https://portal/jsxsd/xk/other", true},
		{"generic login path", "/sso/login?next=/", true},
		{"case insensitive", "/JSXSD/XK/LOGINTOXK", true},
		{"main frame", "/jsxsd/framework/xsMain.jsp", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLoginLocation(tt.location))
		})
	}
}

func TestLooksLikeLoginPage(t *testing.T) {
	assert.True(t, LooksLikeLoginPage(`<form action="/jsxsd/xk/LoginToXk">`))
	assert.True(t, LooksLikeLoginPage(`<input name="userAccount">`))
	assert.True(t, LooksLikeLoginPage(`<h1>用户登录</h1>`))
	assert.False(t, LooksLikeLoginPage(`<table id="dataList"></table>`))
	assert.False(t, LooksLikeLoginPage(""))
}

func TestLooksAuthenticated(t *testing.T) {
	assert.True(t, LooksAuthenticated(`<frame src="/jsxsd/framework/xsMain.jsp">`))
	assert.True(t, LooksAuthenticated(`<title>学生个人中心</title>`))
	assert.False(t, LooksAuthenticated(`<h1>用户登录</h1>`))
	assert.False(t, LooksAuthenticated(""))
}
