package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/hlop3z/tilehouse/internal/alerr"
)

// TilesURL builds the tile URL template advertised in a TileJSON response:
//
//	<scheme>://<host><path without .json>/{z}/{x}/{y}.pbf[?<query>]
//
// The scheme honours X-Forwarded-Proto, the host X-Forwarded-Host, and
// X-Rewrite-URL replaces the request path so a proxy that rewrites paths
// can advertise its public one.
func TilesURL(r *http.Request) (string, error) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := firstValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = proto
	}

	host := r.Host
	if fwd := firstValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
		host = fwd
	}

	path := r.URL.Path
	if rewrite := r.Header.Get("X-Rewrite-URL"); rewrite != "" {
		u, err := url.Parse(rewrite)
		if err != nil {
			return "", alerr.Wrap(alerr.ErrTileJSON, err, "malformed X-Rewrite-URL header").With("header", rewrite)
		}
		path = u.Path
	}
	path = strings.TrimSuffix(path, ".json")

	tiles := scheme + "://" + host + path + "/{z}/{x}/{y}.pbf"
	if r.URL.RawQuery != "" {
		tiles += "?" + r.URL.RawQuery
	}
	return tiles, nil
}

// firstValue returns the first entry of a comma-separated proxy header.
func firstValue(h string) string {
	first, _, _ := strings.Cut(h, ",")
	return strings.TrimSpace(first)
}
