// Package assets serves the site's stylesheet and script, embedded via go:embed.
// URLs carry a content version so browsers may cache them indefinitely; a
// request for any other version is served with no-cache.
package assets

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
)

//go:embed static
var staticFS embed.FS

// Prefix is where FileServer is mounted.
const Prefix = "/static/"

// versions maps each embedded file name to a short hash of its content.
var versions = map[string]string{}

func init() {
	// Not every system mime database knows these.
	_ = mime.AddExtensionType(".woff2", "font/woff2")
	_ = mime.AddExtensionType(".map", "application/json")

	entries, err := fs.ReadDir(staticFS, "static")
	if err != nil {
		panic("assets: reading embedded files: " + err.Error())
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := fs.ReadFile(staticFS, "static/"+e.Name())
		if err != nil {
			panic("assets: reading " + e.Name() + ": " + err.Error())
		}
		sum := sha256.Sum256(data)
		versions[e.Name()] = hex.EncodeToString(sum[:4])
	}
}

// URL returns the versioned URL of an embedded file, e.g.
// "/static/cosint.css?v=1a2b3c4d". Unknown names get an unversioned URL.
func URL(name string) string {
	v, ok := versions[name]
	if !ok {
		return Prefix + name
	}
	return Prefix + name + "?v=" + v
}

// mimeFromExt maps an extension to a Content-Type, falling back to the
// mime package and then application/octet-stream.
func mimeFromExt(ext string) string {
	switch ext {
	case ".js", ".mjs":
		return "application/javascript"
	case ".css":
		return "text/css; charset=utf-8"
	case ".woff2":
		return "font/woff2"
	case ".svg":
		return "image/svg+xml"
	case ".map":
		return "application/json"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

// FileServer returns an http.Handler that serves the embedded files under Prefix.
// Current versions get immutable cache headers; everything else gets no-cache.
func FileServer() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.StripPrefix(strings.TrimSuffix(Prefix, "/"), http.FileServer(http.FS(sub)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, Prefix)

		ext := strings.ToLower(path.Ext(name))
		if ext != "" {
			w.Header().Set("Content-Type", mimeFromExt(ext))
		}

		if v, ok := versions[name]; ok && r.URL.Query().Get("v") == v {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}

		fileServer.ServeHTTP(w, r)
	})
}
