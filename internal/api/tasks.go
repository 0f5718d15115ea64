package api

import (
	"net/http"

	"github.com/colinxiong/MURS/internal/model"
)

// tasksResponse is the JSON response for GET /v1/tasks.
type tasksResponse struct {
	Total int              `json:"total"`
	Tasks []model.TaskInfo `json:"tasks"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.governor.TaskList()
	s.writeJSON(w, http.StatusOK, tasksResponse{
		Total: len(tasks),
		Tasks: tasks,
	})
}
