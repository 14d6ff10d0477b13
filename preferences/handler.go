package preferences

import (
	"errors"
	"net/http"

	"braintacle/respond"

	"go.uber.org/zap"
)

// Handler returns all preferences on GET and stores the posted ones on
// POST. Either all posted values are valid and stored, or none is.
func Handler(s *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			values, err := s.All()
			if err != nil {
				respond.Error(w, logger, http.StatusInternalServerError, "Failed to read preferences", err)
				return
			}
			respond.JSON(w, http.StatusOK, values)
		case http.MethodPost:
			var values map[string]interface{}
			if !respond.DecodeJSON(w, r, &values) {
				return
			}
			if err := s.SetAll(values); err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, ErrUnknownOption) || errors.Is(err, ErrInvalidValue) {
					status = http.StatusBadRequest
				}
				respond.Error(w, logger, status, err.Error(), err)
				return
			}
			respond.Message(w, http.StatusOK, "The configuration was successfully updated.")
		default:
			respond.RequireMethod(w, r, http.MethodGet, http.MethodPost)
		}
	}
}
