package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jcrioszam/red-ciudadana-sub001/device"
	"github.com/jcrioszam/red-ciudadana-sub001/flow"
	"github.com/jcrioszam/red-ciudadana-sub001/media"
)

func (s *Server) catalogHandler(c *gin.Context) {
	categories, err := s.catalogSource.Categories(c.Request.Context())
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadGateway, Code: "catalog_unavailable", Message: "No se pudo cargar el catálogo"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": categories})
}

type createSessionRequest struct {
	// BackendToken, when present, makes the session submit through the
	// authenticated endpoint on behalf of the logged-in citizen.
	BackendToken string `json:"token_backend"`
}

func (s *Server) createSessionHandler(c *gin.Context) {
	if !s.checkRateLimit("flujo:"+c.ClientIP(), sessionRateLimitRequests, sessionRateLimitWindow, time.Now()) {
		writeAPIError(c, &apiError{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: "Demasiadas solicitudes, intenta más tarde"})
		return
	}

	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "Cuerpo de solicitud inválido"})
			return
		}
	}

	session, err := s.createSession(c.Request.Context(), req.BackendToken)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	token, err := s.createSessionToken(session.ID)
	if err != nil {
		s.log.Error("signing session token", "error", err)
		writeAPIError(c, &apiError{Status: http.StatusInternalServerError, Code: "internal_error", Message: "No se pudo crear la sesión"})
		return
	}

	s.log.Info("flow session created", "id", session.ID, "authenticated", session.Authenticated)
	c.JSON(http.StatusCreated, gin.H{
		"id":    session.ID,
		"token": token,
		"flujo": snapshotView(session.Controller.Snapshot()),
	})
}

func (s *Server) sessionSnapshotHandler(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": session.ID, "flujo": snapshotView(session.Controller.Snapshot())})
}

// eventRequest is the wire form of a flow event. "tipo" discriminates; the
// remaining fields are read per event type.
type eventRequest struct {
	Tipo     string   `json:"tipo"`
	Valor    string   `json:"valor"`
	Texto    string   `json:"texto"`
	Latitud  *float64 `json:"latitud"`
	Longitud *float64 `json:"longitud"`
	Motivo   string   `json:"motivo"`
}

func (s *Server) sessionEventHandler(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "Cuerpo de solicitud inválido"})
		return
	}

	event, apiErr := decodeEvent(req)
	if apiErr != nil {
		writeAPIError(c, apiErr)
		return
	}

	if err := session.Controller.Handle(event); err != nil {
		var validation *flow.ValidationError
		var invalid *flow.InvalidEventError
		switch {
		case errors.As(err, &validation):
			// The inline message is already in the snapshot; surface it
			// on the response too so shells can toast it.
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validacion",
				"message": validation.Message,
				"flujo":   snapshotView(session.Controller.Snapshot()),
			})
		case errors.As(err, &invalid):
			writeAPIError(c, &apiError{Status: http.StatusConflict, Code: "evento_invalido", Message: invalid.Error()})
		default:
			writeAPIError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": session.ID, "flujo": snapshotView(session.Controller.Snapshot())})
}

func decodeEvent(req eventRequest) (flow.Event, *apiError) {
	badRequest := func(message string) *apiError {
		return &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: message}
	}
	switch req.Tipo {
	case "seleccionar_tipo":
		return flow.PickCategory{Value: req.Valor}, nil
	case "describir":
		return flow.SubmitDescription{Text: req.Texto}, nil
	case "ubicacion_dispositivo":
		return flow.UseDeviceLocation{}, nil
	case "ubicacion_manual":
		return flow.UseManualLocation{}, nil
	case "ubicacion_mapa":
		return flow.UseMapLocation{}, nil
	case "ubicacion_detectada":
		if req.Latitud == nil || req.Longitud == nil {
			return nil, badRequest("latitud y longitud son requeridas")
		}
		return flow.LocationDetected{Latitude: *req.Latitud, Longitude: *req.Longitud}, nil
	case "ubicacion_fallida":
		return flow.LocationFailed{Reason: device.Reason(req.Motivo)}, nil
	case "confirmar_ubicacion":
		return flow.ConfirmLocation{}, nil
	case "ajustar_ubicacion":
		return flow.AdjustLocation{}, nil
	case "direccion":
		return flow.SetAddressText{Text: req.Texto}, nil
	case "punto_mapa":
		if req.Latitud == nil || req.Longitud == nil {
			return nil, badRequest("latitud y longitud son requeridas")
		}
		return flow.SelectMapPoint{Latitude: *req.Latitud, Longitude: *req.Longitud}, nil
	case "continuar_foto":
		return flow.ContinueToPhoto{}, nil
	case "tomar_foto":
		return flow.TakePhoto{}, nil
	case "capturar_foto":
		return flow.CapturePhoto{}, nil
	case "cancelar_camara":
		return flow.CancelCamera{}, nil
	case "omitir_foto":
		return flow.SkipPhoto{}, nil
	case "enviar":
		return flow.Submit{}, nil
	case "cerrar_confirmacion":
		return flow.DismissSuccess{}, nil
	case "atras":
		return flow.Back{}, nil
	}
	return nil, badRequest("tipo de evento desconocido")
}

// sessionPhotoHandler accepts a multipart photo upload and feeds it to the
// flow as a file attachment. Size and type gates live in the flow itself.
func (s *Server) sessionPhotoHandler(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	header, err := c.FormFile("foto")
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "Se requiere el campo foto"})
		return
	}
	file, err := header.Open()
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "No se pudo leer la foto"})
		return
	}
	defer file.Close()

	// Read one byte past the limit so the flow can reject oversized files
	// with its own message instead of this handler truncating silently.
	data, err := io.ReadAll(io.LimitReader(file, media.MaxPhotoBytes+1))
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "No se pudo leer la foto"})
		return
	}

	event := flow.AttachFile{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Bytes:    data,
	}
	if err := session.Controller.Handle(event); err != nil {
		var validation *flow.ValidationError
		var invalid *flow.InvalidEventError
		switch {
		case errors.As(err, &validation):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validacion",
				"message": validation.Message,
				"flujo":   snapshotView(session.Controller.Snapshot()),
			})
		case errors.As(err, &invalid):
			writeAPIError(c, &apiError{Status: http.StatusConflict, Code: "evento_invalido", Message: invalid.Error()})
		default:
			writeAPIError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": session.ID, "flujo": snapshotView(session.Controller.Snapshot())})
}

// snapshotView shapes a flow snapshot for the wire. Photo bytes never leave
// the server; only their metadata does.
func snapshotView(snap flow.Snapshot) gin.H {
	view := gin.H{
		"estado": snap.State.String(),
		"reporte": gin.H{
			"tipo":        snap.Draft.Category,
			"titulo":      snap.Draft.Title,
			"descripcion": snap.Draft.Description,
			"prioridad":   snap.Draft.Priority,
		},
		"usar_selector_archivo": snap.FallbackToPicker,
	}
	if snap.Draft.Location != nil {
		location := gin.H{
			"latitud":  snap.Draft.Location.Latitude,
			"longitud": snap.Draft.Location.Longitude,
		}
		if snap.Draft.Location.AddressText != nil {
			location["direccion"] = *snap.Draft.Location.AddressText
		}
		view["reporte"].(gin.H)["ubicacion"] = location
	}
	if snap.Draft.Photo != nil {
		view["reporte"].(gin.H)["foto"] = gin.H{
			"nombre":       snap.Draft.Photo.OriginalName,
			"tipo_mime":    snap.Draft.Photo.MimeType,
			"tamano_bytes": snap.Draft.Photo.SizeBytes,
		}
	}
	if snap.Candidate != nil {
		view["candidato"] = gin.H{"latitud": snap.Candidate.Latitude, "longitud": snap.Candidate.Longitude}
	}
	if snap.Status != "" {
		view["estatus"] = snap.Status
	}
	if snap.Err != "" {
		view["error"] = snap.Err
	}
	return view
}
