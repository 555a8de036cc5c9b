package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/pkg/utils"
)

// parseIDParam parses an int64 URL parameter
func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.BadRequest("Invalid " + name)
	}
	return id, nil
}

// writeServiceError maps a service error onto the HTTP response,
// preserving the status carried by application errors
func writeServiceError(w http.ResponseWriter, err error) {
	utils.WriteError(w, err)
}
