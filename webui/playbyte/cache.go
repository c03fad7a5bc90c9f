//go:build !debug

package main

import (
	"fmt"
	"net/http"
	"path"
	"time"
)

var maxAges = map[string]time.Duration{
	".css":  24 * time.Hour,
	".js":   24 * time.Hour,
	".html": 0,
	// thumbnails never change once a Byte is written:
	".png": 365 * 24 * time.Hour,
	".ico": 30 * 24 * time.Hour,
	".svg": 30 * 24 * time.Hour,
}

// MaxAge adds Cache-Control headers by file extension.
func MaxAge(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if age := maxAges[path.Ext(r.URL.Path)]; age > 0 {
			w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d, public, must-revalidate", int64(age/time.Second)))
		}
		h.ServeHTTP(w, r)
	})
}
