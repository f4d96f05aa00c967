package wlan

// Reason a station connection could not be established.
type Reason string

const (
	ReasonNoCredentials   Reason = "no credentials"
	ReasonSSIDUnavailable Reason = "ssid unavailable"
	ReasonRejected        Reason = "interface rejected connect"
	ReasonTimeout         Reason = "timeout"
)

// ConnectionError reports a failed station connection. It is always
// recovered locally by falling back to access-point mode.
type ConnectionError struct {
	Reason Reason
	SSID   string
	Err    error
}

func (e *ConnectionError) Error() string {
	msg := "connection error: " + string(e.Reason)
	if e.SSID != "" {
		msg += " (ssid " + e.SSID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
