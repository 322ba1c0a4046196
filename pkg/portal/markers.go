package portal

import "strings"

// Marker strings observed across portal responses. The portal signals
// "you are (still) on the login page" and "you are authenticated" only
// through these incidental tokens, so every consumer of portal HTML must
// share one definition of each.

// loginLocationMarkers appear in redirect targets that land back on the
// login flow.
var loginLocationMarkers = []string{
	"LoginToXk",
	"/jsxsd/xk/",
	"login",
}

// loginBodyMarkers appear in the login page HTML itself.
var loginBodyMarkers = []string{
	"LoginToXk",
	"userAccount",
	"userPassword",
	"用户登录",
}

// authenticatedBodyMarkers appear in the authenticated main frame.
var authenticatedBodyMarkers = []string{
	"xsMain",
	"main.jsp",
	"学生个人中心",
}

// IsLoginLocation reports whether a redirect target lands on the login flow.
func IsLoginLocation(location string) bool {
	return containsAny(location, loginLocationMarkers)
}

// LooksLikeLoginPage reports whether an HTML body is the portal's login
// page. Resource pages served to an expired upstream session silently
// degrade to this page, so extractors use it to detect session loss.
func LooksLikeLoginPage(body string) bool {
	return containsAny(body, loginBodyMarkers)
}

// LooksAuthenticated reports whether an HTML body is the authenticated
// main frame.
func LooksAuthenticated(body string) bool {
	return containsAny(body, authenticatedBodyMarkers)
}

func containsAny(s string, markers []string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
