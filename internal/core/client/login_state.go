package client

// LoginState tracks a client through the login handshake.
type LoginState int

const (
	NotEntered LoginState = iota
	WaitingJoin
	NoPassword
	Authenticated
	InvalidUsername
	InvalidPassword
	Unranked
)

// Resolved reports whether the account service has ruled on the client.
func (s LoginState) Resolved() bool {
	return s >= NoPassword
}

// Named reports whether the client owns the name it logged in with, which
// makes it reachable by private messages.
func (s LoginState) Named() bool {
	return s == NoPassword || s == Authenticated
}

func (s LoginState) String() string {
	switch s {
	case NotEntered:
		return "NOT_ENTERED"
	case WaitingJoin:
		return "WAITING_JOIN"
	case NoPassword:
		return "NO_PASSWORD"
	case Authenticated:
		return "AUTHENTICATED"
	case InvalidUsername:
		return "INVALID_USERNAME"
	case InvalidPassword:
		return "INVALID_PASSWORD"
	case Unranked:
		return "UNRANKED"
	}
	return "UNKNOWN"
}
