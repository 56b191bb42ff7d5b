package httpapi

import (
	"net/http"

	"github.com/chatplatform/relay/internal/model"
)

type createStoryRequest struct {
	MediaURL string `json:"mediaUrl" validate:"required,url"`
}

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	stories, err := s.dsp.ListStories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if stories == nil {
		stories = []model.Story{}
	}
	writeJSON(w, http.StatusOK, stories)
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	story, err := s.dsp.CreateStory(r.Context(), callerID(r), req.MediaURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, story)
}
