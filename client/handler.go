package client

import (
	"errors"
	"net/http"

	"braintacle/charset"
	"braintacle/config"
	"braintacle/database"
	"braintacle/lock"
	"braintacle/respond"

	"go.uber.org/zap"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrInvalidOption), errors.Is(err, ErrInvalidProductKey):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrLocked):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func filterFromQuery(r *http.Request) database.ClientFilter {
	q := r.URL.Query()
	return database.ClientFilter{
		Name:   q.Get("name"),
		OsName: q.Get("os"),
		UserID: q.Get("user"),
	}
}

// ListHandler lists clients: ?name=&os=&user=&order=Name&direction=desc
func ListHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodGet) {
			return
		}
		q := r.URL.Query()
		clients, err := s.List(filterFromQuery(r), q.Get("order"), q.Get("direction"))
		if err != nil {
			respond.Error(w, logger, errorStatus(err), err.Error(), err)
			return
		}
		respond.JSON(w, http.StatusOK, clients)
	}
}

// ShowHandler returns one client: /api/clients/{id}
func ShowHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodGet) {
			return
		}
		id, ok := respond.PathID(r, "/api/clients/")
		if !ok {
			respond.Message(w, http.StatusBadRequest, "Invalid client id")
			return
		}
		detail, err := s.Get(id)
		if err != nil {
			respond.Error(w, logger, errorStatus(err), "Failed to get client", err)
			return
		}
		respond.JSON(w, http.StatusOK, detail)
	}
}

// DeleteHandler deletes a client.
func DeleteHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodPost) {
			return
		}
		var req struct {
			ID               int64 `json:"id"`
			DeleteInterfaces bool  `json:"deleteInterfaces"`
		}
		if !respond.DecodeJSON(w, r, &req) {
			return
		}
		if err := s.Delete(req.ID, req.DeleteInterfaces); err != nil {
			respond.Error(w, logger, errorStatus(err), "Client could not be deleted.", err)
			return
		}
		respond.Message(w, http.StatusOK, "Client was successfully deleted.")
	}
}

// CustomFieldsHandler updates custom fields of a client.
func CustomFieldsHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodPost) {
			return
		}
		var req struct {
			ID     int64             `json:"id"`
			Fields map[string]string `json:"fields"`
		}
		if !respond.DecodeJSON(w, r, &req) {
			return
		}
		if err := s.SetCustomFields(req.ID, req.Fields); err != nil {
			respond.Error(w, logger, errorStatus(err), "Failed to set custom fields", err)
			return
		}
		respond.Message(w, http.StatusOK, "The information was successfully updated.")
	}
}

// ConfigHandler sets or clears a per-client option.
func ConfigHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodPost) {
			return
		}
		var req struct {
			ID     int64       `json:"id"`
			Option string      `json:"option"`
			Value  interface{} `json:"value"`
		}
		if !respond.DecodeJSON(w, r, &req) {
			return
		}
		if err := s.SetConfig(req.ID, req.Option, req.Value); err != nil {
			respond.Error(w, logger, errorStatus(err), err.Error(), err)
			return
		}
		respond.Message(w, http.StatusOK, "The configuration was successfully updated.")
	}
}

// ProductKeyHandler sets the manual Windows product key.
func ProductKeyHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodPost) {
			return
		}
		var req struct {
			ID  int64  `json:"id"`
			Key string `json:"key"`
		}
		if !respond.DecodeJSON(w, r, &req) {
			return
		}
		if err := s.SetProductKey(req.ID, req.Key); err != nil {
			respond.Error(w, logger, errorStatus(err), err.Error(), err)
			return
		}
		respond.Message(w, http.StatusOK, "The product key was successfully updated.")
	}
}

// ExportHandler downloads the client list as CSV. ?encoding= overrides the
// configured export encoding.
func ExportHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodGet) {
			return
		}
		q := r.URL.Query()
		clients, err := s.List(filterFromQuery(r), q.Get("order"), q.Get("direction"))
		if err != nil {
			respond.Error(w, logger, errorStatus(err), err.Error(), err)
			return
		}
		encoding := q.Get("encoding")
		if encoding == "" {
			encoding = config.GetConfig().Export.Encoding
		}
		if _, err := charset.Lookup(encoding); err != nil {
			respond.Error(w, logger, http.StatusBadRequest, err.Error(), err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="clients.csv"`)
		if err := ExportCSV(w, clients, encoding); err != nil && logger != nil {
			logger.Error("Failed to export clients", zap.Error(err))
		}
	}
}
