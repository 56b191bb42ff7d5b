package httpapi

import (
	"net/http"
)

type uploadURLRequest struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	FileType string `json:"fileType" validate:"required,max=100"`
}

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	var req uploadURLRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	upload, err := s.signer.PresignUpload(r.Context(), callerID(r), req.FileName, req.FileType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}
