package server

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// handleSPA serves the built web client from dir. Paths that do not name a
// file fall through to index.html so client-side routes resolve.
func handleSPA(dir string) http.HandlerFunc {
	fsys := os.DirFS(dir)
	files := http.FileServerFS(fsys)

	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if info, err := fs.Stat(fsys, name); name != "" && err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		http.ServeFileFS(w, r, fsys, "index.html")
	}
}
