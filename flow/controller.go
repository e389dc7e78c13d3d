// Package flow implements the guided report submission flow as a
// platform-independent state machine. Surfaces (web shells, the terminal
// wizard) are thin adapters that forward events and render snapshots.
package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jcrioszam/red-ciudadana-sub001/catalog"
	"github.com/jcrioszam/red-ciudadana-sub001/device"
	"github.com/jcrioszam/red-ciudadana-sub001/media"
)

const (
	locateTimeout = 10 * time.Second
	locateMaxAge  = 5 * time.Minute

	defaultFallbackDelay   = 2 * time.Second
	defaultSuccessInterval = 6 * time.Second
)

// User-facing messages. The flow never lets an error escape; every failure
// becomes one of these plus a transition.
const (
	msgDetecting          = "Detectando tu ubicación…"
	msgOpeningCamera      = "Abriendo la cámara…"
	msgSending            = "Enviando tu reporte…"
	msgCameraFallback     = "Tu dispositivo no tiene vista previa de cámara, selecciona una foto"
	msgCameraDenied       = "Permiso de cámara denegado"
	msgCameraNotReady     = "La cámara aún no está lista"
	msgNoCandidate        = "Aún no se detecta tu ubicación"
	msgUnknownCategory    = "Selecciona un tipo de reporte válido"
	msgDescriptionNeeded  = "Describe el problema antes de continuar"
	msgLocationNeeded     = "Indica la ubicación del reporte"
	msgPhotoTooLarge      = "La foto supera el límite de 5 MB"
	msgPhotoNotImage      = "El archivo debe ser una imagen"
	msgSubmitUnavailable  = "No se pudo enviar el reporte, intenta de nuevo más tarde"
	msgLocationPermission = "Permiso de ubicación denegado"
	msgLocationTimeout    = "La búsqueda de ubicación tardó demasiado"
	msgLocationFailed     = "No pudimos determinar tu ubicación"
	msgLocationAbsent     = "Tu dispositivo no permite la geolocalización"
)

// FailureKind distinguishes the two submission failure families.
type FailureKind string

const (
	// FailureRejected: the backend rejected the payload (4xx). The user
	// should check their input.
	FailureRejected FailureKind = "rejected"
	// FailureUnavailable: network failure or 5xx. The user should retry
	// later; the draft is preserved.
	FailureUnavailable FailureKind = "unavailable"
)

// SubmitFailure is returned by a Submitter when the backend did not accept
// the report.
type SubmitFailure struct {
	Kind    FailureKind
	Message string
}

func (e *SubmitFailure) Error() string { return e.Message }

// Submitter delivers a completed draft to the backend. Implementations must
// not mutate the draft.
type Submitter interface {
	Submit(ctx context.Context, draft *ReportDraft) error
}

// Options configure a Controller. Locator and Camera are optional: when nil
// the corresponding device results are expected as posted events
// (LocationDetected/LocationFailed) or via file-picker fallback, which is
// how browser bridges operate.
type Options struct {
	Categories []catalog.Category
	Locator    device.Locator
	Camera     device.Camera
	Submitter  Submitter

	// SuccessDisplayInterval is how long the Success state shows before the
	// flow resets on its own. FallbackDelay is how long a geolocation
	// failure message is displayed before auto-routing to manual entry.
	SuccessDisplayInterval time.Duration
	FallbackDelay          time.Duration
}

// Snapshot is an adapter-facing view of the flow at one instant.
type Snapshot struct {
	State            State
	Draft            ReportDraft
	Candidate        *GeoPoint
	Status           string
	Err              string
	FallbackToPicker bool
}

// Controller owns the current step, the accumulating draft, and the
// transient messages, and serializes every mutation. All device and network
// work is dispatched asynchronously with at most one outstanding request
// per concern; late results for abandoned requests are discarded.
type Controller struct {
	mu sync.Mutex

	state            State
	draft            *ReportDraft
	candidate        *GeoPoint
	status           string
	errMsg           string
	fallbackToPicker bool

	capture *media.CaptureSession

	categories      []catalog.Category
	locator         device.Locator
	camera          device.Camera
	submitter       Submitter
	fallbackDelay   time.Duration
	successInterval time.Duration

	locateSeq int
	cameraSeq int
	submitSeq int
	resetSeq  int
}

// New builds a controller starting at SelectCategory with an empty draft.
func New(opts Options) *Controller {
	categories := opts.Categories
	if len(categories) == 0 {
		categories = catalog.Fallback()
	}
	fallbackDelay := opts.FallbackDelay
	if fallbackDelay <= 0 {
		fallbackDelay = defaultFallbackDelay
	}
	successInterval := opts.SuccessDisplayInterval
	if successInterval <= 0 {
		successInterval = defaultSuccessInterval
	}
	return &Controller{
		state:           StateSelectCategory,
		draft:           NewDraft(),
		categories:      categories,
		locator:         opts.Locator,
		camera:          opts.Camera,
		submitter:       opts.Submitter,
		fallbackDelay:   fallbackDelay,
		successInterval: successInterval,
	}
}

// Snapshot returns a copy of the current flow state for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:            c.state,
		Draft:            *c.draft.clone(),
		Status:           c.status,
		Err:              c.errMsg,
		FallbackToPicker: c.fallbackToPicker,
	}
	if c.candidate != nil {
		candidate := *c.candidate
		snap.Candidate = &candidate
	}
	return snap
}

// Categories returns the catalog the controller was built with.
func (c *Controller) Categories() []catalog.Category {
	out := make([]catalog.Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Close releases any held device resource and abandons pending requests.
// Late async resolutions after Close are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseCaptureLocked()
	c.abandonAsyncLocked()
}

// Handle applies one event. An event that is not legal in the current state
// returns *InvalidEventError; a failed gate returns *ValidationError and
// sets the inline message. Neither mutates the draft.
func (c *Controller) Handle(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := event.(type) {
	case PickCategory:
		return c.pickCategoryLocked(ev)
	case SubmitDescription:
		return c.submitDescriptionLocked(ev)
	case UseDeviceLocation:
		return c.useDeviceLocationLocked(event)
	case UseManualLocation:
		return c.routeLocked(event, StateChooseLocationStrategy, StateManualLocationEntry)
	case UseMapLocation:
		return c.routeLocked(event, StateChooseLocationStrategy, StateMapLocationEntry)
	case LocationDetected:
		return c.locationDetectedLocked(ev)
	case LocationFailed:
		return c.locationFailedLocked(ev)
	case ConfirmLocation:
		return c.confirmLocationLocked(event)
	case AdjustLocation:
		return c.adjustLocationLocked(event)
	case SetAddressText:
		return c.setAddressTextLocked(ev)
	case SelectMapPoint:
		return c.selectMapPointLocked(ev)
	case ContinueToPhoto:
		return c.continueToPhotoLocked(event)
	case TakePhoto:
		return c.takePhotoLocked(event)
	case CapturePhoto:
		return c.capturePhotoLocked(event)
	case CancelCamera:
		return c.cancelCameraLocked(event)
	case AttachFile:
		return c.attachFileLocked(ev)
	case SkipPhoto:
		return c.routeLocked(event, StateChoosePhotoStrategy, StateReview)
	case Submit:
		return c.submitLocked(event)
	case DismissSuccess:
		return c.dismissSuccessLocked(event)
	case Back:
		return c.backLocked(event)
	default:
		return &InvalidEventError{State: c.state, Event: event}
	}
}

func (c *Controller) invalidLocked(event Event) error {
	return &InvalidEventError{State: c.state, Event: event}
}

func (c *Controller) validationLocked(message string) error {
	c.errMsg = message
	return &ValidationError{Message: message}
}

func (c *Controller) pickCategoryLocked(ev PickCategory) error {
	if c.state != StateSelectCategory {
		return c.invalidLocked(ev)
	}
	cat, ok := catalog.Find(c.categories, ev.Value)
	if !ok {
		return c.validationLocked(msgUnknownCategory)
	}
	// A category change keeps any previously typed description on purpose.
	c.draft.Category = cat.Valor
	c.draft.Title = cat.Nombre
	c.state = StateDescribe
	c.errMsg = ""
	return nil
}

func (c *Controller) submitDescriptionLocked(ev SubmitDescription) error {
	if c.state != StateDescribe {
		return c.invalidLocked(ev)
	}
	if strings.TrimSpace(ev.Text) == "" {
		return c.validationLocked(msgDescriptionNeeded)
	}
	c.draft.Description = ev.Text
	c.state = StateChooseLocationStrategy
	c.errMsg = ""
	return nil
}

func (c *Controller) routeLocked(event Event, from, to State) error {
	if c.state != from {
		return c.invalidLocked(event)
	}
	c.state = to
	c.errMsg = ""
	c.status = ""
	return nil
}

func (c *Controller) useDeviceLocationLocked(event Event) error {
	if c.state != StateChooseLocationStrategy {
		return c.invalidLocked(event)
	}
	c.state = StateConfirmDetectedLocation
	c.candidate = nil
	c.errMsg = ""
	c.status = msgDetecting
	c.locateSeq++
	if c.locator == nil {
		// Remote device bridge: the adapter posts LocationDetected or
		// LocationFailed when the platform query resolves.
		return nil
	}
	go c.runLocate(c.locateSeq)
	return nil
}

func (c *Controller) runLocate(seq int) {
	opts := device.LocateOptions{HighAccuracy: true, Timeout: locateTimeout, MaximumAge: locateMaxAge}
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()
	pos, err := c.locator.Locate(ctx, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.locateSeq || c.state != StateConfirmDetectedLocation {
		// The user navigated away while the query was pending.
		return
	}
	if err != nil {
		c.failLocateLocked(device.ClassifyReason(err))
		return
	}
	c.candidate = &GeoPoint{Latitude: pos.Latitude, Longitude: pos.Longitude}
	c.status = ""
}

func (c *Controller) locationDetectedLocked(ev LocationDetected) error {
	if c.state != StateConfirmDetectedLocation {
		return c.invalidLocked(ev)
	}
	c.candidate = &GeoPoint{Latitude: ev.Latitude, Longitude: ev.Longitude}
	c.status = ""
	c.errMsg = ""
	return nil
}

func (c *Controller) locationFailedLocked(ev LocationFailed) error {
	if c.state != StateConfirmDetectedLocation {
		return c.invalidLocked(ev)
	}
	c.failLocateLocked(ev.Reason)
	return nil
}

// failLocateLocked shows the classified reason and auto-routes to manual
// entry after the display delay, so a geolocation failure never strands the
// user.
func (c *Controller) failLocateLocked(reason device.Reason) {
	c.status = ""
	c.errMsg = locationReasonMessage(reason)
	seq := c.locateSeq
	time.AfterFunc(c.fallbackDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if seq != c.locateSeq || c.state != StateConfirmDetectedLocation || c.candidate != nil {
			return
		}
		c.state = StateManualLocationEntry
		c.errMsg = ""
	})
}

func locationReasonMessage(reason device.Reason) string {
	switch reason {
	case device.ReasonPermissionDenied:
		return msgLocationPermission
	case device.ReasonTimeout:
		return msgLocationTimeout
	case device.ReasonNotSupported:
		return msgLocationAbsent
	default:
		return msgLocationFailed
	}
}

func (c *Controller) confirmLocationLocked(event Event) error {
	if c.state != StateConfirmDetectedLocation {
		return c.invalidLocked(event)
	}
	if c.candidate == nil {
		return c.validationLocked(msgNoCandidate)
	}
	c.draft.Location = &Location{Latitude: c.candidate.Latitude, Longitude: c.candidate.Longitude}
	c.candidate = nil
	c.state = StateChoosePhotoStrategy
	c.errMsg = ""
	return nil
}

func (c *Controller) adjustLocationLocked(event Event) error {
	if c.state != StateConfirmDetectedLocation {
		return c.invalidLocked(event)
	}
	c.candidate = nil
	c.locateSeq++
	c.status = ""
	c.errMsg = ""
	c.state = StateMapLocationEntry
	return nil
}

func (c *Controller) setAddressTextLocked(ev SetAddressText) error {
	if c.state != StateManualLocationEntry {
		return c.invalidLocked(ev)
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		c.draft.Location = nil
		return nil
	}
	// Replaces whatever a previous strategy captured; coordinates stay at
	// their zero default in this path, no client-side geocoding happens.
	c.draft.Location = &Location{AddressText: &text}
	c.errMsg = ""
	return nil
}

func (c *Controller) selectMapPointLocked(ev SelectMapPoint) error {
	if c.state != StateMapLocationEntry {
		return c.invalidLocked(ev)
	}
	c.draft.Location = &Location{Latitude: ev.Latitude, Longitude: ev.Longitude}
	c.errMsg = ""
	return nil
}

func (c *Controller) continueToPhotoLocked(event Event) error {
	if c.state != StateManualLocationEntry && c.state != StateMapLocationEntry {
		return c.invalidLocked(event)
	}
	if !c.draft.HasLocation() {
		return c.validationLocked(msgLocationNeeded)
	}
	c.state = StateChoosePhotoStrategy
	c.errMsg = ""
	c.fallbackToPicker = false
	return nil
}

func (c *Controller) takePhotoLocked(event Event) error {
	if c.state != StateChoosePhotoStrategy {
		return c.invalidLocked(event)
	}
	if c.camera == nil {
		// No live-preview camera on this platform: degrade to the native
		// file picker in capture mode. The adapter reacts to the flag.
		c.fallbackToPicker = true
		c.status = msgCameraFallback
		return nil
	}
	c.state = StateCameraCapture
	c.status = msgOpeningCamera
	c.errMsg = ""
	c.cameraSeq++
	go c.runOpenCamera(c.cameraSeq)
	return nil
}

func (c *Controller) runOpenCamera(seq int) {
	session, err := media.OpenCapture(context.Background(), c.camera)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.cameraSeq || c.state != StateCameraCapture {
		if session != nil {
			_ = session.Release()
		}
		return
	}
	if err != nil {
		c.state = StateChoosePhotoStrategy
		c.status = ""
		switch device.ClassifyReason(err) {
		case device.ReasonNotSupported, device.ReasonUnavailable:
			c.fallbackToPicker = true
			c.status = msgCameraFallback
			c.errMsg = ""
		default:
			c.errMsg = msgCameraDenied
		}
		return
	}
	c.capture = session
	c.status = ""
}

func (c *Controller) capturePhotoLocked(event Event) error {
	if c.state != StateCameraCapture {
		return c.invalidLocked(event)
	}
	if c.capture == nil {
		return c.validationLocked(msgCameraNotReady)
	}
	session := c.capture
	c.capture = nil
	attachment, err := session.Capture(context.Background())
	if err != nil {
		// Capture releases the stream on every path; only the message and
		// the step change here.
		c.state = StateChoosePhotoStrategy
		c.errMsg = mediaErrorMessage(err)
		return &ValidationError{Message: c.errMsg}
	}
	c.draft.Photo = attachment
	c.state = StateReview
	c.errMsg = ""
	return nil
}

func (c *Controller) cancelCameraLocked(event Event) error {
	if c.state != StateCameraCapture {
		return c.invalidLocked(event)
	}
	c.releaseCaptureLocked()
	c.cameraSeq++
	c.state = StateChoosePhotoStrategy
	c.status = ""
	c.errMsg = ""
	return nil
}

func (c *Controller) attachFileLocked(ev AttachFile) error {
	if c.state != StateChoosePhotoStrategy {
		return c.invalidLocked(ev)
	}
	attachment, err := media.ValidateFile(ev.Name, ev.MimeType, ev.Bytes)
	if err != nil {
		return c.validationLocked(mediaErrorMessage(err))
	}
	c.draft.Photo = attachment
	c.fallbackToPicker = false
	c.status = ""
	c.errMsg = ""
	c.state = StateReview
	return nil
}

func mediaErrorMessage(err error) string {
	switch {
	case errors.Is(err, media.ErrPhotoTooLarge):
		return msgPhotoTooLarge
	case errors.Is(err, media.ErrUnsupportedType):
		return msgPhotoNotImage
	default:
		return msgCameraNotReady
	}
}

func (c *Controller) submitLocked(event Event) error {
	if c.state != StateReview {
		return c.invalidLocked(event)
	}
	// Earlier gates should guarantee these; re-checked defensively.
	if !c.draft.HasDescription() {
		return c.validationLocked(msgDescriptionNeeded)
	}
	if !c.draft.HasLocation() {
		return c.validationLocked(msgLocationNeeded)
	}
	if c.submitter == nil {
		return c.validationLocked(msgSubmitUnavailable)
	}
	c.state = StateSubmitting
	c.status = msgSending
	c.errMsg = ""
	c.submitSeq++
	go c.runSubmit(c.submitSeq, c.draft.clone())
	return nil
}

func (c *Controller) runSubmit(seq int, snapshot *ReportDraft) {
	err := c.submitter.Submit(context.Background(), snapshot)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.submitSeq || c.state != StateSubmitting {
		return
	}
	c.status = ""
	if err != nil {
		// Back to review with the draft untouched so the user can retry
		// without re-entering anything. No automatic retry.
		c.state = StateReview
		var failure *SubmitFailure
		if errors.As(err, &failure) && failure.Message != "" {
			c.errMsg = failure.Message
		} else {
			c.errMsg = msgSubmitUnavailable
		}
		return
	}
	c.state = StateSuccess
	c.scheduleSuccessResetLocked()
}

func (c *Controller) scheduleSuccessResetLocked() {
	c.resetSeq++
	seq := c.resetSeq
	time.AfterFunc(c.successInterval, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if seq != c.resetSeq || c.state != StateSuccess {
			// A stale timer must never clobber a draft the user already
			// started after an explicit dismiss.
			return
		}
		c.resetLocked()
	})
}

func (c *Controller) dismissSuccessLocked(event Event) error {
	if c.state != StateSuccess {
		return c.invalidLocked(event)
	}
	c.resetLocked()
	return nil
}

func (c *Controller) backLocked(event Event) error {
	target, ok := predecessor[c.state]
	if !ok {
		return c.invalidLocked(event)
	}
	switch c.state {
	case StateDescribe:
		// Description intentionally survives so re-picking a category does
		// not force retyping it.
		c.draft.Category = ""
		c.draft.Title = ""
	case StateConfirmDetectedLocation:
		c.candidate = nil
		c.locateSeq++
	case StateManualLocationEntry, StateMapLocationEntry:
		c.draft.Location = nil
	case StateChoosePhotoStrategy:
		c.draft.Location = nil
		c.fallbackToPicker = false
	case StateCameraCapture:
		c.releaseCaptureLocked()
		c.cameraSeq++
	case StateReview:
		c.draft.Photo = nil
	}
	c.state = target
	c.status = ""
	c.errMsg = ""
	return nil
}

func (c *Controller) resetLocked() {
	c.releaseCaptureLocked()
	c.abandonAsyncLocked()
	c.draft = NewDraft()
	c.candidate = nil
	c.status = ""
	c.errMsg = ""
	c.fallbackToPicker = false
	c.state = StateSelectCategory
}

func (c *Controller) releaseCaptureLocked() {
	if c.capture != nil {
		_ = c.capture.Release()
		c.capture = nil
	}
}

func (c *Controller) abandonAsyncLocked() {
	c.locateSeq++
	c.cameraSeq++
	c.submitSeq++
	c.resetSeq++
}
