package web

import (
	"net/http"

	"github.com/cocaresync/cocaresync/internal/core"
)

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.PatientFilter{
		Search:    q.Get("search"),
		TBStatus:  q.Get("tbStatus"),
		HIVStatus: q.Get("hivStatus"),
		Limit:     parseIntParam(r, "limit", core.DefaultPageSize),
	}

	page, err := s.service.ListPatients(r.Context(), filter, parseIntParam(r, "page", 1))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	detail, err := s.service.GetPatientDetail(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var in core.PatientInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	p, err := s.service.CreatePatient(r.Context(), in, core.UserIDFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdatePatient(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var upd core.PatientUpdate
	if err := decodeJSON(r, &upd); err != nil {
		s.fail(w, r, err)
		return
	}

	p, err := s.service.UpdatePatient(r.Context(), id, upd, core.UserIDFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePatient(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.service.DeletePatient(r.Context(), id, core.UserIDFromContext(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTreatment(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuidParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var in core.TreatmentInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	t, err := s.service.CreateTreatment(r.Context(), patientID, in, core.UserIDFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleCreateLabResult(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuidParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var in core.LabResultInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	lab, err := s.service.CreateLabResult(r.Context(), patientID, in, core.UserIDFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lab)
}
