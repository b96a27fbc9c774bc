package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/rumor-ml/commons.systems/envelopes/internal/importer"
)

// maxImportBytes bounds one uploaded statement file. Bank exports run tens
// of kilobytes; anything near this limit is not a statement.
const maxImportBytes = 32 << 20

// ImportHandlers handles statement file uploads.
type ImportHandlers struct {
	importer *importer.Importer
}

// NewImportHandlers creates the import handler set.
func NewImportHandlers(i *importer.Importer) *ImportHandlers {
	return &ImportHandlers{importer: i}
}

// Import handles POST /api/import. The multipart form carries the file, the
// target account label, and an optional dialect hint; omitted hints fall
// back to filename and header sniffing. Imports run synchronously and answer
// with the per-file summary.
func (h *ImportHandlers) Import(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	accountLabel := r.FormValue("account")
	if accountLabel == "" {
		http.Error(w, "account field is required", http.StatusBadRequest)
		return
	}
	dialectHint := r.FormValue("dialect")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImportBytes))
	if err != nil {
		log.Printf("ERROR: Failed to read upload %s for user %d: %v", header.Filename, uid, err)
		http.Error(w, "Failed to read upload", http.StatusInternalServerError)
		return
	}

	summary, err := h.importer.ImportFile(r.Context(), uid, accountLabel, header.Filename, data, dialectHint)
	if err != nil {
		log.Printf("ERROR: Failed to import %s for user %d: %v", header.Filename, uid, err)
		http.Error(w, "Import failed", http.StatusUnprocessableEntity)
		return
	}

	log.Printf("INFO: Imported %s for user %d: dialect=%s rows=%d inserted=%d duplicates=%d",
		header.Filename, uid, summary.Dialect, summary.Rows, summary.Inserted, summary.Duplicates)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, summary)
}
