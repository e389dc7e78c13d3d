package flow

import (
	"strings"

	"github.com/jcrioszam/red-ciudadana-sub001/media"
)

// Priority of a report. The public flow never exposes it for editing; every
// submitted report carries the default unless the hosting shell overrides it.
type Priority string

const (
	PriorityBaja    Priority = "baja"
	PriorityMedia   Priority = "media"
	PriorityAlta    Priority = "alta"
	PriorityUrgente Priority = "urgente"
)

// GeoPoint is a detected-but-unconfirmed coordinate pair. It is held apart
// from the committed draft location until the user accepts it and is never
// submitted on its own.
type GeoPoint struct {
	Latitude  float64 `json:"latitud"`
	Longitude float64 `json:"longitud"`
}

// Location is the committed draft location. Coordinates are authoritative;
// AddressText is display-only except in the manual-entry path, where it is
// the only captured datum and the coordinates stay at their zero default.
type Location struct {
	Latitude    float64 `json:"latitud"`
	Longitude   float64 `json:"longitud"`
	AddressText *string `json:"direccion,omitempty"`
}

// ReportDraft is the single mutable entity the flow assembles. One draft
// exists at a time; it is discarded on successful submission or when the
// flow is torn down, never persisted.
type ReportDraft struct {
	Category    string            `json:"tipo"`
	Title       string            `json:"titulo"`
	Description string            `json:"descripcion"`
	Location    *Location         `json:"ubicacion,omitempty"`
	Photo       *media.Attachment `json:"-"`
	Priority    Priority          `json:"prioridad"`
}

// NewDraft returns an empty draft with the default priority.
func NewDraft() *ReportDraft {
	return &ReportDraft{Priority: PriorityMedia}
}

// HasDescription reports whether the description gate is satisfied.
func (d *ReportDraft) HasDescription() bool {
	return strings.TrimSpace(d.Description) != ""
}

// HasLocation reports whether the location gate is satisfied. A location is
// only ever set by a strategy that captured something, so presence suffices.
func (d *ReportDraft) HasLocation() bool {
	return d.Location != nil
}

func (d *ReportDraft) clone() *ReportDraft {
	out := *d
	if d.Location != nil {
		loc := *d.Location
		if d.Location.AddressText != nil {
			text := *d.Location.AddressText
			loc.AddressText = &text
		}
		out.Location = &loc
	}
	if d.Photo != nil {
		photo := *d.Photo
		out.Photo = &photo
	}
	return &out
}
