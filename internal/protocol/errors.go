package protocol

const (
	// Request validation.
	ErrInvalidArgument = "invalidArgument"
	ErrBadRequest      = "badRequest"
	ErrInvalidMethod   = "invalidMethod"

	// Lookups.
	ErrMapNotFound = "mapNotFound"

	// Authorization.
	ErrInvalidToken = "invalidToken"
	ErrUnknownToken = "unknownToken"
)

var knownCodes = map[string]struct{}{
	ErrInvalidArgument: {},
	ErrBadRequest:      {},
	ErrInvalidMethod:   {},
	ErrMapNotFound:     {},
	ErrInvalidToken:    {},
	ErrUnknownToken:    {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// ErrorResponse is the body of every failed REST call.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
