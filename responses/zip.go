package responses

import (
	"fmt"
	"net/http"
	"os"
)

// ServeZipFile streams a zip archive from disk as an attachment.
// Range and conditional requests are handled by http.ServeContent.
func ServeZipFile(w http.ResponseWriter, r *http.Request, path, filename string) error {
	return serveFile(w, r, path, "application/zip", "attachment", filename)
}

// serveFile returns the os error untouched so callers can test os.ErrNotExist.
// Nothing is written to w on error.
func serveFile(w http.ResponseWriter, r *http.Request, path, contentType, disposition, filename string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, filename))
	http.ServeContent(w, r, filename, st.ModTime(), f)
	return nil
}
