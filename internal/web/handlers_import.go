package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cocaresync/cocaresync/internal/core"
	"github.com/cocaresync/cocaresync/internal/logging"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

// handleImportPatients accepts a CSV or spreadsheet in the multipart field
// "file" and imports every row. Row failures are part of a 200 response.
func (s *Server) handleImportPatients(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize+64<<10)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, err, http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > s.cfg.Import.MaxFileSize {
		s.respondError(w, r, &http.MaxBytesError{Limit: s.cfg.Import.MaxFileSize}, http.StatusRequestEntityTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	userID := core.UserIDFromContext(r.Context())
	logging.FromContext(r.Context()).Info("import received",
		"file", header.Filename,
		"size", header.Size,
		"user_id", userID,
	)

	result, err := s.service.ImportPatients(r.Context(), data, header.Filename, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleImportTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="patient_import_template.csv"`)
	w.Write(core.ImportTemplate())
}

// handleExportPatients renders the whole export before writing so a
// failure can still be reported as JSON.
func (s *Server) handleExportPatients(w http.ResponseWriter, r *http.Request) {
	format, err := core.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.service.ExportPatients(r.Context(), &buf, format, core.UserIDFromContext(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}

	fileName := fmt.Sprintf("patients_export_%s.%s", s.now().Format("2006-01-02"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	buf.WriteTo(w)
}
