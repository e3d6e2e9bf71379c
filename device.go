package auth

import "strings"

// DeviceInfo is a coarse description of the client behind a user agent.
type DeviceInfo struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Kind    string `json:"kind"`
}

// String renders the device for humans, e.g. "Chrome on macOS (desktop)"
func (d DeviceInfo) String() string {
	return d.Browser + " on " + d.OS + " (" + d.Kind + ")"
}

const unknownDevice = "Unknown"

// order matters: Edge and Opera also advertise Chrome, Chrome advertises Safari
var browserTokens = []struct{ token, name string }{
	{"edg/", "Edge"},
	{"opr/", "Opera"},
	{"firefox/", "Firefox"},
	{"fxios/", "Firefox"},
	{"crios/", "Chrome"},
	{"chrome/", "Chrome"},
	{"safari/", "Safari"},
	{"curl/", "curl"},
	{"postman", "Postman"},
}

var osTokens = []struct{ token, name string }{
	{"iphone", "iOS"},
	{"ipad", "iPadOS"},
	{"android", "Android"},
	{"windows", "Windows"},
	{"mac os x", "macOS"},
	{"macintosh", "macOS"},
	{"cros", "ChromeOS"},
	{"linux", "Linux"},
}

// ParseUserAgent derives DeviceInfo from a User-Agent header
func ParseUserAgent(ua string) DeviceInfo {
	lower := strings.ToLower(ua)
	info := DeviceInfo{Browser: unknownDevice, OS: unknownDevice, Kind: "desktop"}

	if strings.TrimSpace(lower) == "" {
		info.Kind = unknownDevice
		return info
	}

	for _, b := range browserTokens {
		if strings.Contains(lower, b.token) {
			info.Browser = b.name
			break
		}
	}

	for _, o := range osTokens {
		if strings.Contains(lower, o.token) {
			info.OS = o.name
			break
		}
	}

	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		info.Kind = "tablet"
	case strings.Contains(lower, "mobile") || strings.Contains(lower, "iphone") || strings.Contains(lower, "android"):
		info.Kind = "mobile"
	case strings.Contains(lower, "bot") || strings.Contains(lower, "curl/") || strings.Contains(lower, "postman"):
		info.Kind = "bot"
	}

	return info
}
