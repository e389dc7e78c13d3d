// Package gateway serializes a completed draft and delivers it to the
// backend. Two variants exist over the same contract: the public endpoint
// takes multipart (the photo travels inline) and the authenticated endpoint
// takes JSON with a photo URL. Outcomes are translated into the flow's
// failure taxonomy; no retry is attempted and no idempotency key is sent.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/jcrioszam/red-ciudadana-sub001/catalog"
	"github.com/jcrioszam/red-ciudadana-sub001/flow"
	"github.com/jcrioszam/red-ciudadana-sub001/media"
)

const (
	authenticatedPath = "/reportes-ciudadanos/"
	publicPath        = "/reportes-ciudadanos/publico"

	// The backend can be slow; one long client timeout, not configurable
	// per call and not cancellable mid-flight.
	submitTimeout = 60 * time.Second

	msgRejected    = "Revisa los datos ingresados"
	msgUnavailable = "Intenta de nuevo más tarde"
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: submitTimeout}
}

// PublicGateway submits through POST {BaseURL}/reportes-ciudadanos/publico
// as multipart form data.
type PublicGateway struct {
	BaseURL    string
	Client     *http.Client
	Categories []catalog.Category
}

// NewPublicGateway builds a public gateway validating against the given
// catalog (the static fallback when the fetch failed earlier).
func NewPublicGateway(baseURL string, categories []catalog.Category) *PublicGateway {
	return &PublicGateway{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Client:     newHTTPClient(),
		Categories: categories,
	}
}

func (g *PublicGateway) Submit(ctx context.Context, draft *flow.ReportDraft) error {
	if err := validateDraft(draft, g.Categories); err != nil {
		return err
	}

	body := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(body)

	fields := map[string]string{
		"titulo":      draft.Title,
		"descripcion": draft.Description,
		"tipo":        draft.Category,
		"latitud":     formatCoordinate(draft.Location.Latitude),
		"longitud":    formatCoordinate(draft.Location.Longitude),
		"prioridad":   string(draft.Priority),
		"es_publico":  "true",
	}
	if draft.Location.AddressText != nil {
		fields["direccion"] = *draft.Location.AddressText
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return err
		}
	}

	if draft.Photo != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="foto"; filename=%q`, draft.Photo.OriginalName))
		header.Set("Content-Type", draft.Photo.MimeType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return err
		}
		if _, err := part.Write(draft.Photo.Bytes); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+publicPath, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return perform(g.Client, req)
}

// AuthenticatedGateway submits through POST {BaseURL}/reportes-ciudadanos/
// as JSON on behalf of a signed-in citizen. The host shell supplies the
// bearer token; credentials are never handled here. UploadPhoto, when set,
// turns the attachment into the foto_url the JSON contract carries; without
// it the report goes out with an empty foto_url.
type AuthenticatedGateway struct {
	BaseURL    string
	Token      string
	Client     *http.Client
	Categories []catalog.Category

	UploadPhoto func(ctx context.Context, photo *media.Attachment) (string, error)
}

// NewAuthenticatedGateway builds the JSON-variant gateway.
func NewAuthenticatedGateway(baseURL, token string, categories []catalog.Category) *AuthenticatedGateway {
	return &AuthenticatedGateway{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		Client:     newHTTPClient(),
		Categories: categories,
	}
}

func (g *AuthenticatedGateway) Submit(ctx context.Context, draft *flow.ReportDraft) error {
	if err := validateDraft(draft, g.Categories); err != nil {
		return err
	}

	fotoURL := ""
	if draft.Photo != nil && g.UploadPhoto != nil {
		url, err := g.UploadPhoto(ctx, draft.Photo)
		if err != nil {
			return &flow.SubmitFailure{Kind: flow.FailureUnavailable, Message: msgUnavailable}
		}
		fotoURL = url
	}

	payload := struct {
		Titulo      string  `json:"titulo"`
		Descripcion string  `json:"descripcion"`
		Tipo        string  `json:"tipo"`
		Latitud     float64 `json:"latitud"`
		Longitud    float64 `json:"longitud"`
		Direccion   *string `json:"direccion,omitempty"`
		FotoURL     string  `json:"foto_url"`
		Prioridad   string  `json:"prioridad"`
	}{
		Titulo:      draft.Title,
		Descripcion: draft.Description,
		Tipo:        draft.Category,
		Latitud:     draft.Location.Latitude,
		Longitud:    draft.Location.Longitude,
		Direccion:   draft.Location.AddressText,
		FotoURL:     fotoURL,
		Prioridad:   string(draft.Priority),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+authenticatedPath, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.Token)

	return perform(g.Client, req)
}

// validateDraft re-checks the flow gates defensively before any network
// call leaves the device.
func validateDraft(draft *flow.ReportDraft, categories []catalog.Category) error {
	if !draft.HasDescription() || !draft.HasLocation() {
		return &flow.SubmitFailure{Kind: flow.FailureRejected, Message: msgRejected}
	}
	if len(categories) > 0 {
		if _, ok := catalog.Find(categories, draft.Category); !ok {
			return &flow.SubmitFailure{Kind: flow.FailureRejected, Message: msgRejected}
		}
	}
	return nil
}

func perform(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return &flow.SubmitFailure{Kind: flow.FailureUnavailable, Message: msgUnavailable}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &flow.SubmitFailure{Kind: flow.FailureRejected, Message: msgRejected}
	default:
		return &flow.SubmitFailure{Kind: flow.FailureUnavailable, Message: msgUnavailable}
	}
}

func formatCoordinate(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
