package httpapi

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// serveStatic serves webDir/<path>, mapping "/" to index.html. It reports
// false without writing anything when no regular file matches.
func serveStatic(w http.ResponseWriter, r *http.Request, webDir string) bool {
	p := path.Clean("/" + r.URL.Path)
	if p == "/" {
		p = "/index.html"
	}
	f, err := os.Open(filepath.Join(webDir, filepath.FromSlash(p)))
	if err != nil {
		return false
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
	return true
}
