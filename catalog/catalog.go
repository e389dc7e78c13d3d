// Package catalog resolves the report-type catalog. The catalog normally
// comes from the backend configuration endpoint; when that fetch fails a
// fixed built-in catalog takes over for the rest of the session.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Category describes one issue type a citizen can report.
type Category struct {
	Valor       string `json:"valor"`
	Nombre      string `json:"nombre"`
	Icono       string `json:"icono"`
	Descripcion string `json:"descripcion"`
	Categoria   string `json:"categoria"`
}

// Source yields the current report-type catalog.
type Source interface {
	Categories(ctx context.Context) ([]Category, error)
}

var fallbackCatalog = []Category{
	{Valor: "baches_banqueta_invadida", Nombre: "Baches y banquetas invadidas", Icono: "road", Descripcion: "Baches en calles o banquetas obstruidas", Categoria: "vialidad"},
	{Valor: "alumbrado_publico", Nombre: "Alumbrado público", Icono: "lightbulb", Descripcion: "Luminarias apagadas o dañadas", Categoria: "servicios"},
	{Valor: "basura_acumulada", Nombre: "Basura acumulada", Icono: "trash", Descripcion: "Acumulación de basura en vía pública", Categoria: "limpieza"},
	{Valor: "fuga_agua", Nombre: "Fuga de agua", Icono: "droplet", Descripcion: "Fugas en la red de agua potable", Categoria: "servicios"},
	{Valor: "drenaje_obstruido", Nombre: "Drenaje obstruido", Icono: "pipe", Descripcion: "Alcantarillas o drenajes tapados", Categoria: "servicios"},
	{Valor: "parques_jardines", Nombre: "Parques y jardines descuidados", Icono: "tree", Descripcion: "Áreas verdes sin mantenimiento", Categoria: "espacios"},
	{Valor: "semaforo_descompuesto", Nombre: "Semáforo descompuesto", Icono: "traffic-light", Descripcion: "Semáforos fuera de servicio", Categoria: "vialidad"},
	{Valor: "senalizacion_danada", Nombre: "Señalización vial dañada", Icono: "sign", Descripcion: "Señales de tránsito dañadas o faltantes", Categoria: "vialidad"},
	{Valor: "otro", Nombre: "Otro", Icono: "more", Descripcion: "Cualquier otro problema en tu colonia", Categoria: "general"},
}

// Fallback returns a copy of the built-in catalog. Callers may mutate the
// returned slice freely.
func Fallback() []Category {
	out := make([]Category, len(fallbackCatalog))
	copy(out, fallbackCatalog)
	return out
}

// Find locates a category by its valor.
func Find(categories []Category, valor string) (Category, bool) {
	for _, cat := range categories {
		if cat.Valor == valor {
			return cat, true
		}
	}
	return Category{}, false
}

// HTTPSource fetches the catalog from GET {BaseURL}/tipos-reporte/.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

func (s *HTTPSource) Categories(ctx context.Context) ([]Category, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/tipos-reporte/", nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tipos-reporte error (%d): %s", resp.StatusCode, string(body))
	}

	var data struct {
		Data []Category `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	if len(data.Data) == 0 {
		return nil, fmt.Errorf("tipos-reporte returned an empty catalog")
	}
	return data.Data, nil
}

// FallbackSource resolves through the primary source once and serves the
// built-in catalog if that fails. After the first resolution every call
// returns the same list, so a failed fetch can never produce a partial or
// empty catalog on a later render.
type FallbackSource struct {
	Primary Source

	mu       sync.Mutex
	resolved []Category
}

func (s *FallbackSource) Categories(ctx context.Context) ([]Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved == nil {
		categories, err := s.Primary.Categories(ctx)
		if err != nil || len(categories) == 0 {
			categories = Fallback()
		}
		s.resolved = categories
	}

	out := make([]Category, len(s.resolved))
	copy(out, s.resolved)
	return out, nil
}
