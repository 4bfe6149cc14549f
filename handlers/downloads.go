package handlers

import (
	"errors"
	"io/fs"
	"log"
	"net/http"
	"path/filepath"

	"github.com/zeptools/gw-certs/requests"
	"github.com/zeptools/gw-certs/responses"
	"github.com/zeptools/gw-certs/sec"
	"github.com/zeptools/gw-certs/throttle"
)

// Download handles GET /downloads/{token} and GET /downloads with a bearer token
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	if !h.allow(throttle.GroupDownload, requests.GetClientIP(r)) {
		responses.WriteSimpleErrorJSON(w, http.StatusTooManyRequests, "too many downloads, try again later")
		return
	}
	token := r.PathValue("token")
	if token == "" {
		token = sec.ExtractBearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		responses.WriteSimpleErrorJSON(w, http.StatusUnauthorized, "download token required")
		return
	}
	claims, err := h.Signer.Verify(token)
	if err != nil {
		responses.WriteSimpleErrorJSON(w, http.StatusUnauthorized, "invalid or expired download link")
		return
	}
	path := filepath.Join(h.ArchiveDir, claims.Archive)
	err = responses.ServeZipFile(w, r, path, claims.Archive)
	if errors.Is(err, fs.ErrNotExist) {
		responses.WriteSimpleErrorJSON(w, http.StatusGone, "archive expired")
		return
	}
	if err != nil {
		log.Printf("[ERROR][WEB] download %s: %v", claims.Archive, err)
		responses.WriteSimpleErrorJSON(w, http.StatusInternalServerError, "cannot read archive")
	}
}
