package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/registry"
	"github.com/hlop3z/tilehouse/internal/source"
	"github.com/hlop3z/tilehouse/internal/tile"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// -----------------------------------------------------------------------------
// Index
// -----------------------------------------------------------------------------

func (s *Server) handleTableIndex(w http.ResponseWriter, r *http.Request) {
	var (
		cat *source.Catalog
		err error
	)
	if s.watch {
		cat, err = s.exec.ScanTableSources(r.Context())
		if err == nil {
			_, err = s.publisher.PublishTables(cat)
		}
	} else {
		cat, err = s.lane().TableSources()
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeIndex(w, r, cat)
}

func (s *Server) handleFunctionIndex(w http.ResponseWriter, r *http.Request) {
	var (
		cat *source.Catalog
		err error
	)
	if s.watch {
		cat, err = s.exec.ScanFunctionSources(r.Context())
		if err == nil {
			_, err = s.publisher.PublishFunctions(cat)
		}
	} else {
		cat, err = s.lane().FunctionSources()
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeIndex(w, r, cat)
}

func (s *Server) writeIndex(w http.ResponseWriter, r *http.Request, cat *source.Catalog) {
	etag := `"` + cat.Digest() + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	s.writeJSON(w, http.StatusOK, cat)
}

// -----------------------------------------------------------------------------
// TileJSON
// -----------------------------------------------------------------------------

func (s *Server) handleTableTileJSON(w http.ResponseWriter, r *http.Request) {
	s.serveTileJSON(w, r, func(lane *registry.Registry, id string) (source.Source, error) {
		return lane.TableSource(id)
	})
}

func (s *Server) handleFunctionTileJSON(w http.ResponseWriter, r *http.Request) {
	s.serveTileJSON(w, r, func(lane *registry.Registry, id string) (source.Source, error) {
		return lane.FunctionSource(id)
	})
}

type resolver func(lane *registry.Registry, id string) (source.Source, error)

func (s *Server) serveTileJSON(w http.ResponseWriter, r *http.Request, resolve resolver) {
	param, err := sourceID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, ok := strings.CutSuffix(param, ".json")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	src, err := resolve(s.lane(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	tj, err := src.TileJSON()
	if err != nil {
		s.fail(w, r, alerr.Wrap(alerr.ErrTileJSON, err, "failed to build TileJSON").WithSource(id))
		return
	}
	tilesURL, err := TilesURL(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tj.Tiles = []string{tilesURL}

	s.writeJSON(w, http.StatusOK, tj)
}

// -----------------------------------------------------------------------------
// Tiles
// -----------------------------------------------------------------------------

func (s *Server) handleTableTile(w http.ResponseWriter, r *http.Request) {
	s.serveTile(w, r, nil, func(lane *registry.Registry, id string) (source.Source, error) {
		return lane.TableSource(id)
	})
}

func (s *Server) handleFunctionTile(w http.ResponseWriter, r *http.Request) {
	s.serveTile(w, r, queryParams(r.URL.Query()), func(lane *registry.Registry, id string) (source.Source, error) {
		return lane.FunctionSource(id)
	})
}

func (s *Server) serveTile(w http.ResponseWriter, r *http.Request, params source.Params, resolve resolver) {
	id, err := sourceID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	xyz, format, err := tile.Parse(chi.URLParam(r, "z"), chi.URLParam(r, "x"), chi.URLParam(r, "y"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if format != "" && format != "pbf" && format != "mvt" {
		s.fail(w, r, alerr.Newf(alerr.ErrInvalidTile, "unsupported tile format %q", format))
		return
	}

	src, err := resolve(s.lane(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	payload, err := s.exec.FetchTile(r.Context(), src, xyz, params)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	if len(payload) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// sourceID returns the unescaped {source_id} path parameter.
func sourceID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "source_id")
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", alerr.Wrap(alerr.ErrInvalidTile, err, "malformed source id").With("source", raw)
	}
	return id, nil
}

// queryParams keeps the first value of every query parameter.
func queryParams(q url.Values) source.Params {
	if len(q) == 0 {
		return nil
	}
	params := make(source.Params, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}
