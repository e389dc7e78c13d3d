package flow

// State identifies one step of the guided submission flow.
type State int

const (
	StateSelectCategory State = iota
	StateDescribe
	StateChooseLocationStrategy
	StateConfirmDetectedLocation
	StateManualLocationEntry
	StateMapLocationEntry
	StateChoosePhotoStrategy
	StateCameraCapture
	StateReview
	StateSubmitting
	StateSuccess
)

var stateNames = map[State]string{
	StateSelectCategory:          "select_category",
	StateDescribe:                "describe",
	StateChooseLocationStrategy:  "choose_location_strategy",
	StateConfirmDetectedLocation: "confirm_detected_location",
	StateManualLocationEntry:     "manual_location_entry",
	StateMapLocationEntry:        "map_location_entry",
	StateChoosePhotoStrategy:     "choose_photo_strategy",
	StateCameraCapture:           "camera_capture",
	StateReview:                  "review",
	StateSubmitting:              "submitting",
	StateSuccess:                 "success",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// predecessor maps each state to the state a backward navigation lands on.
// Submitting and Success have no backward edge.
var predecessor = map[State]State{
	StateDescribe:                StateSelectCategory,
	StateChooseLocationStrategy:  StateDescribe,
	StateConfirmDetectedLocation: StateChooseLocationStrategy,
	StateManualLocationEntry:     StateChooseLocationStrategy,
	StateMapLocationEntry:        StateChooseLocationStrategy,
	StateChoosePhotoStrategy:     StateChooseLocationStrategy,
	StateCameraCapture:           StateChoosePhotoStrategy,
	StateReview:                  StateChoosePhotoStrategy,
}
