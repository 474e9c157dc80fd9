package fsm

import "bikeweather/internal/domain"

// Action is user-triggerable next step exposed to presentation layer.
type Action string

const (
	// ActionRequestPermission asks for location authorization.
	ActionRequestPermission Action = "request_permission"
	// ActionRetry re-enters ready flow.
	ActionRetry Action = "retry"
)

const (
	descriptionNeedLocation = "I need to know where you are in order to figure out the current weather conditions at your location."
	descriptionNoLocation   = "I can't check the weather without knowing where you are."
	descriptionUnknown      = "I don't know, just look out of your window."
)

// View is derived presentation of one state.
type View struct {
	Status      string `json:"status"`
	Description string `json:"description"`
	Prompt      string `json:"prompt,omitempty"`
	Action      Action `json:"action,omitempty"`
}

// View derives presentation strings.
// Params: none.
// Returns: status, description, optional prompt, and optional action; no side effects.
func (s State) View() View {
	switch s.Kind {
	case KindInitial:
		return View{Status: "Waiting…"}
	case KindReady:
		return View{Status: "Where are you?"}
	case KindAwaitingPermission:
		if s.PermissionRequested {
			return View{Status: "I'll wait for you."}
		}
		return View{
			Status:      "Where are you?",
			Description: descriptionNeedLocation,
			Prompt:      "Here I am!",
			Action:      ActionRequestPermission,
		}
	case KindPermissionGranted:
		return View{Status: "Trying to find you…"}
	case KindPermissionDenied:
		return View{Status: "Sorry", Description: descriptionNoLocation, Prompt: "Try again!", Action: ActionRetry}
	case KindLocationKnown:
		return View{Status: "Checking…"}
	case KindVerdictReady:
		if s.Verdict == nil {
			return View{Status: "Maybe", Description: descriptionUnknown, Prompt: "And now?", Action: ActionRetry}
		}
		status := "No"
		if s.Verdict.Outcome == domain.OutcomeFavorable {
			status = "Yes"
		}
		return View{Status: status, Description: s.Verdict.Reason(), Prompt: "And now?", Action: ActionRetry}
	case KindFailed:
		return View{Status: "Sorry", Description: descriptionUnknown, Prompt: "Try again!", Action: ActionRetry}
	default:
		return View{}
	}
}
