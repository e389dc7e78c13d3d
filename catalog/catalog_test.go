package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSourceParsesCatalog(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tipos-reporte/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"valor":"fuga_agua","nombre":"Fuga de agua","icono":"droplet","descripcion":"Fugas","categoria":"servicios"}]}`))
	}))
	defer backend.Close()

	source := &HTTPSource{BaseURL: backend.URL, Client: backend.Client()}
	categories, err := source.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(categories) != 1 || categories[0].Valor != "fuga_agua" {
		t.Fatalf("categories = %+v", categories)
	}
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer backend.Close()

	source := &HTTPSource{BaseURL: backend.URL, Client: backend.Client()}
	if _, err := source.Categories(context.Background()); err == nil {
		t.Fatal("expected an error on a 500")
	}
}

func TestHTTPSourceEmptyCatalog(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer backend.Close()

	source := &HTTPSource{BaseURL: backend.URL, Client: backend.Client()}
	if _, err := source.Categories(context.Background()); err == nil {
		t.Fatal("an empty catalog must be treated as a failed fetch")
	}
}

func TestFallbackSourceServesBuiltinOnFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer backend.Close()

	source := &FallbackSource{Primary: &HTTPSource{BaseURL: backend.URL, Client: backend.Client()}}
	categories, err := source.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(categories) != 9 {
		t.Fatalf("got %d categories, want the 9 built-in ones", len(categories))
	}
	if _, ok := Find(categories, "otro"); !ok {
		t.Fatal("built-in catalog missing 'otro'")
	}
}

func TestFallbackSourceResolvesOnce(t *testing.T) {
	calls := 0
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"data":[{"valor":"otro","nombre":"Otro"}]}`))
	}))
	defer backend.Close()

	source := &FallbackSource{Primary: &HTTPSource{BaseURL: backend.URL, Client: backend.Client()}}
	first, err := source.Categories(context.Background())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := source.Categories(context.Background())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if calls != 1 {
		t.Fatalf("primary fetched %d times, want once", calls)
	}
	if len(first) != len(second) || first[0].Valor != second[0].Valor {
		t.Fatal("resolved catalog changed between calls")
	}
}

func TestFallbackSourceReturnsCopies(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer backend.Close()

	source := &FallbackSource{Primary: &HTTPSource{BaseURL: backend.URL, Client: backend.Client()}}
	first, _ := source.Categories(context.Background())
	first[0].Nombre = "mutado"

	second, _ := source.Categories(context.Background())
	if second[0].Nombre == "mutado" {
		t.Fatal("caller mutation leaked into the resolved catalog")
	}
}

func TestFallbackReturnsFreshCopy(t *testing.T) {
	first := Fallback()
	first[0].Valor = "mutado"
	if Fallback()[0].Valor == "mutado" {
		t.Fatal("Fallback shares its backing array")
	}
}

func TestFind(t *testing.T) {
	categories := Fallback()
	if _, ok := Find(categories, "fuga_agua"); !ok {
		t.Fatal("fuga_agua not found")
	}
	if _, ok := Find(categories, "no_existe"); ok {
		t.Fatal("unexpected match")
	}
}
