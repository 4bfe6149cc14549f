package handlers

import (
	"log"
	"net/http"

	"github.com/zeptools/gw-certs/certs"
	"github.com/zeptools/gw-certs/documents"
	"github.com/zeptools/gw-certs/responses"
)

// Certificate handles GET /records/{id}/certificate, rendering on demand and serving inline
func (h *Handlers) Certificate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := h.Documents.Produce(r.Context(), id)
	if err != nil {
		log.Printf("[ERROR][WEB] certificate %s: %v", id, err)
		responses.WriteSimpleErrorJSON(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	if !res.OK() {
		status := http.StatusUnprocessableEntity
		switch res.Reason {
		case certs.KindMissingRecordData, certs.KindMissingTemplate:
			status = http.StatusNotFound
		case certs.KindRenderIOFailure:
			status = http.StatusInternalServerError
		}
		responses.WriteSimpleErrorJSON(w, status, string(res.Reason)+": "+res.Message)
		return
	}
	if err := responses.ServePDFFile(w, r, res.DocumentPath, documents.DocumentName(id)); err != nil {
		log.Printf("[ERROR][WEB] certificate %s: %v", id, err)
		responses.WriteSimpleErrorJSON(w, http.StatusInternalServerError, "cannot read certificate")
	}
}
