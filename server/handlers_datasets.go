package server

import (
	"io"
	"mime"
	"net/http"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/logger"
	"github.com/teranos/dataq/pipeline"
)

// uploadField is the multipart field carrying the file
const uploadField = "file"

// HandleUpload stores a multipart upload. ?process=true profiles it right
// away; adding ?async=true queues that work and answers 202.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	process, err := queryBool(r, "process")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	async, err := queryBool(r, "async")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, s.logger, errors.WithHint(
			errors.NewInvalidRequestError("expected a multipart/form-data body"),
			"send the file in a form field named "+uploadField))
		return
	}

	// Stream the file part straight into storage; the service enforces the size limit
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeError(w, r, s.logger, errors.Mark(errors.Wrap(err, "malformed multipart body"), errors.ErrInvalidRequest))
			return
		}
		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		result, err := s.svc.Upload(r.Context(), ownerFrom(r), part.FileName(), part,
			pipeline.UploadOptions{Process: process, Async: async})
		part.Close()
		if err != nil {
			writeError(w, r, s.logger, err)
			return
		}

		status := http.StatusCreated
		if result.Job != nil {
			status = http.StatusAccepted
		}
		writeJSON(w, status, result)
		return
	}

	writeError(w, r, s.logger, errors.NewInvalidRequestError("multipart body has no %q field", uploadField))
}

// HandleListDatasets lists the owner's datasets, newest first
func (s *Server) HandleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.svc.List(r.Context(), ownerFrom(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if datasets == nil {
		datasets = []*pipeline.Dataset{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": datasets,
		"count":    len(datasets),
	})
}

func (s *Server) HandleGetDataset(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Get(r.Context(), ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleProcess profiles the dataset synchronously, or queues it with ?async=true
func (s *Server) HandleProcess(w http.ResponseWriter, r *http.Request) {
	async, err := queryBool(r, "async")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if async {
		s.HandleProcessAsync(w, r)
		return
	}

	report, err := s.svc.Process(r.Context(), ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) HandleProcessAsync(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.svc.ProcessAsync(r.Context(), ownerFrom(r), id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"dataset_id": id,
		"status":     pipeline.StatusProcessing,
		"job":        job,
	})
}

func (s *Server) HandleExplain(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Explain(r.Context(), ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) HandleClean(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Clean(r.Context(), ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) HandleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Report(r.Context(), ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) HandleLatestCleaning(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.LatestCleaning(r.Context(), ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleCleanedFile streams the cleaned CSV as an attachment
func (s *Server) HandleCleanedFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rc, name, err := s.svc.CleanedArtifact(r.Context(), ownerFrom(r), id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, rc)
	if err != nil {
		// Headers are gone; all we can do is log
		s.logger.Warnw("Cleaned file download interrupted",
			logger.FieldDatasetID, id,
			logger.FieldSize, n,
			logger.FieldError, err,
		)
	}
}
