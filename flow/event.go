package flow

import (
	"fmt"

	"github.com/jcrioszam/red-ciudadana-sub001/device"
)

// Event is one user action or device result applied to the flow. Events are
// a closed set; the controller rejects any event that is not legal in the
// current state without mutating anything.
type Event interface {
	isEvent()
}

// PickCategory selects an issue type and derives the draft title.
type PickCategory struct{ Value string }

// SubmitDescription commits the free-text description and advances.
type SubmitDescription struct{ Text string }

// UseDeviceLocation starts an asynchronous geolocation query.
type UseDeviceLocation struct{}

// UseManualLocation routes to free-text address entry.
type UseManualLocation struct{}

// UseMapLocation routes to interactive map point-selection.
type UseMapLocation struct{}

// LocationDetected delivers a geolocation result from a remote device
// bridge (for example a browser) when no in-process Locator is wired.
type LocationDetected struct {
	Latitude  float64
	Longitude float64
}

// LocationFailed delivers a classified geolocation failure from a remote
// device bridge.
type LocationFailed struct{ Reason device.Reason }

// ConfirmLocation commits the transient candidate to the draft.
type ConfirmLocation struct{}

// AdjustLocation discards the candidate and routes to map selection.
type AdjustLocation struct{}

// SetAddressText captures the manual address text. Empty text clears the
// location again.
type SetAddressText struct{ Text string }

// SelectMapPoint writes a tapped map coordinate to the draft.
type SelectMapPoint struct {
	Latitude  float64
	Longitude float64
}

// ContinueToPhoto leaves a manual or map location step once the location
// gate is satisfied.
type ContinueToPhoto struct{}

// TakePhoto starts a live camera session, degrading to the file picker on
// platforms without one.
type TakePhoto struct{}

// CapturePhoto snapshots the current camera frame and attaches it.
type CapturePhoto struct{}

// CancelCamera abandons the camera session and releases the stream.
type CancelCamera struct{}

// AttachFile attaches a selected file after validation.
type AttachFile struct {
	Name     string
	MimeType string
	Bytes    []byte
}

// SkipPhoto proceeds to review without a photo.
type SkipPhoto struct{}

// Submit sends the completed draft through the gateway.
type Submit struct{}

// DismissSuccess returns to the start immediately instead of waiting for
// the success display interval.
type DismissSuccess struct{}

// Back navigates to the immediate predecessor state, discarding only what
// was introduced after it.
type Back struct{}

func (PickCategory) isEvent()      {}
func (SubmitDescription) isEvent() {}
func (UseDeviceLocation) isEvent() {}
func (UseManualLocation) isEvent() {}
func (UseMapLocation) isEvent()    {}
func (LocationDetected) isEvent()  {}
func (LocationFailed) isEvent()    {}
func (ConfirmLocation) isEvent()   {}
func (AdjustLocation) isEvent()    {}
func (SetAddressText) isEvent()    {}
func (SelectMapPoint) isEvent()    {}
func (ContinueToPhoto) isEvent()   {}
func (TakePhoto) isEvent()         {}
func (CapturePhoto) isEvent()      {}
func (CancelCamera) isEvent()      {}
func (AttachFile) isEvent()        {}
func (SkipPhoto) isEvent()         {}
func (Submit) isEvent()            {}
func (DismissSuccess) isEvent()    {}
func (Back) isEvent()              {}

// InvalidEventError reports an event that is not legal in the current
// state. The flow state is left untouched.
type InvalidEventError struct {
	State State
	Event Event
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("event %T is not valid in state %s", e.Event, e.State)
}

// ValidationError is a local gate failure: the user stays on the offending
// step with an inline message and no transition occurs.
type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }
