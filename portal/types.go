package portal

import (
	"fmt"
	"net/url"
	"strings"
)

// Portal routes, relative to the base URL.
const (
	routeSendPassword = "/auth/send_password"
	routeLogin        = "/auth/login"
	routeApps         = "/apps"
	routeCreateApp    = "/apps/create"
)

const (
	// SessionCookieName is the cookie my.telegram.org uses for the login session.
	SessionCookieName = "stel_token"

	// invalidCodeBody is the exact login response for a wrong code or hash.
	invalidCodeBody = "Invalid confirmation code!"
)

// Platform is the value of the app_platform form field.
type Platform string

const (
	PlatformAndroid      Platform = "android"
	PlatformIOS          Platform = "ios"
	PlatformWindowsPhone Platform = "wp"
	PlatformBlackBerry   Platform = "bb"
	PlatformDesktop      Platform = "desktop"
	PlatformWeb          Platform = "web"
	PlatformUbuntuPhone  Platform = "ubp"
	PlatformOther        Platform = "other"
)

// Platforms returns every platform the creation form offers, in form order.
func Platforms() []Platform {
	return []Platform{
		PlatformAndroid,
		PlatformIOS,
		PlatformWindowsPhone,
		PlatformBlackBerry,
		PlatformDesktop,
		PlatformWeb,
		PlatformUbuntuPhone,
		PlatformOther,
	}
}

// ParsePlatform matches s case-insensitively against Platforms.
func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms() {
		if strings.EqualFold(s, string(p)) {
			return p, nil
		}
	}
	return "", NewValidationError("platform", fmt.Sprintf("unknown platform %q", s))
}

// App is the application registration form. Values are submitted unchanged;
// the portal enforces its own rules (short name: alphanumeric, 5-32 chars).
type App struct {
	Title       string   `json:"app_title"`
	ShortName   string   `json:"app_shortname"`
	URL         string   `json:"app_url,omitempty"`
	Platform    Platform `json:"app_platform"`
	Description string   `json:"app_dsc,omitempty"`
}

func (a App) formValues(hash string) url.Values {
	return url.Values{
		"hash":          {hash},
		"app_title":     {a.Title},
		"app_shortname": {a.ShortName},
		"app_url":       {a.URL},
		"app_platform":  {string(a.Platform)},
		"app_dsc":       {a.Description},
	}
}

// Credentials are the api_id/api_hash pair shown on the apps page.
type Credentials struct {
	APIID   string `json:"api_id"`
	APIHash string `json:"api_hash"`
}
