package domain

// Screen is one of the two pages gated by the session.
type Screen string

const (
	ScreenLogin Screen = "login"
	ScreenChat  Screen = "chat"
)

// Path returns the route that displays the screen.
func (s Screen) Path() string {
	if s == ScreenChat {
		return "/chat"
	}
	return "/"
}

// Action is what a screen should do with the current request.
type Action int

const (
	ActionSuspend Action = iota
	ActionRender
	ActionRedirect
)

// Decision is the result of an access check. Location is set only for
// ActionRedirect.
type Decision struct {
	Action   Action
	Location string
}
