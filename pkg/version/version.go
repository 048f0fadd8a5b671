package version

// Version is the current version of the interview coaching server
const Version = "0.3.0"

// UserAgent returns the User-Agent string for outbound HTTP and websocket requests
func UserAgent() string {
	return "interview-coach/" + Version
}

// ServerHeader returns the Server header value for HTTP responses
func ServerHeader() string {
	return "interview-coach/" + Version
}
