package source

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/hlop3z/tilehouse/internal/alerr"
)

func points() *Table {
	return &Table{
		Schema: "public", TableName: "points", GeometryColumn: "geom", SRID: 3857,
		Bounds: WorldBounds,
	}
}

func TestNewCatalog(t *testing.T) {
	cat, err := NewCatalog(KindTable, roads(), points())
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	if cat.Len() != 2 || cat.Kind() != KindTable {
		t.Errorf("Len=%d Kind=%s", cat.Len(), cat.Kind())
	}
	if !reflect.DeepEqual(cat.IDs(), []string{"public.points", "public.roads"}) {
		t.Errorf("IDs = %v", cat.IDs())
	}
	if len(cat.Tables()) != 2 || len(cat.Functions()) != 0 {
		t.Errorf("Tables=%d Functions=%d", len(cat.Tables()), len(cat.Functions()))
	}
	if _, ok := cat.Get("public.roads"); !ok {
		t.Error("Get(public.roads) missing")
	}
}

func TestNewCatalogRejects(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		sources []Source
	}{
		{name: "duplicate", kind: KindTable, sources: []Source{roads(), roads()}},
		{name: "kind_mismatch", kind: KindFunction, sources: []Source{roads()}},
		{name: "composite_kind", kind: KindComposite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCatalog(tt.kind, tt.sources...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCatalogLookup(t *testing.T) {
	cat, _ := NewCatalog(KindTable, roads())

	_, err := cat.Lookup("public.missing")
	if !alerr.Is(err, alerr.ErrSourceNotFound) {
		t.Fatalf("err = %v, want ErrSourceNotFound", err)
	}
	var e *alerr.Error
	if !errors.As(err, &e) || e.GetContext()["source"] != "public.missing" {
		t.Errorf("error does not name the missing id: %v", err)
	}
}

func TestCatalogResolve(t *testing.T) {
	cat, _ := NewCatalog(KindTable, roads(), points())

	single, err := cat.Resolve("public.roads")
	if err != nil || single.Kind() != KindTable {
		t.Fatalf("Resolve single = %v, %v", single, err)
	}

	multi, err := cat.Resolve("public.points, public.roads")
	if err != nil {
		t.Fatalf("Resolve multi: %v", err)
	}
	if multi.Kind() != KindComposite || multi.ID() != "public.points,public.roads" {
		t.Errorf("Resolve multi = %s %q", multi.Kind(), multi.ID())
	}

	if _, err := cat.Resolve("public.roads,public.nope"); !alerr.Is(err, alerr.ErrSourceNotFound) {
		t.Errorf("err = %v, want ErrSourceNotFound", err)
	}
	if _, err := cat.Resolve(" , "); !alerr.Is(err, alerr.ErrSourceNotFound) {
		t.Errorf("err = %v, want ErrSourceNotFound", err)
	}
}

func TestCatalogDigest(t *testing.T) {
	a, _ := NewCatalog(KindTable, roads(), points())
	b, _ := NewCatalog(KindTable, points(), roads())
	if a.Digest() != b.Digest() {
		t.Error("digest depends on insertion order")
	}

	changed := roads()
	changed.SRID = 3857
	c, _ := NewCatalog(KindTable, changed, points())
	if a.Digest() == c.Digest() {
		t.Error("digest ignores source contents")
	}

	empty, _ := NewCatalog(KindTable)
	if empty.Digest() != EmptyCatalog(KindTable).Digest() {
		t.Error("empty catalogs disagree on digest")
	}
	if empty.Digest() == a.Digest() {
		t.Error("empty digest collides")
	}
}

func TestCatalogMarshalJSON(t *testing.T) {
	cat, _ := NewCatalog(KindTable, roads())
	raw, err := json.Marshal(cat)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	entry, ok := decoded["public.roads"]
	if !ok {
		t.Fatalf("missing key: %s", raw)
	}
	if entry["table"] != "roads" || entry["srid"] != float64(4326) {
		t.Errorf("entry = %v", entry)
	}
}
