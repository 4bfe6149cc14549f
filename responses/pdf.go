package responses

import "net/http"

// ServePDFFile streams a rendered certificate inline
func ServePDFFile(w http.ResponseWriter, r *http.Request, path, filename string) error {
	return serveFile(w, r, path, "application/pdf", "inline", filename)
}
