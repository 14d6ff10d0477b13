package duplicates

import (
	"errors"
	"net/http"

	"braintacle/database"
	"braintacle/lock"
	"braintacle/preferences"
	"braintacle/respond"

	"go.uber.org/zap"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCriterion), errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrLocked):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// CountHandler returns the number of duplicates per criterion.
func CountHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodGet) {
			return
		}
		counts, err := s.Count(r.Context())
		if err != nil {
			respond.Error(w, logger, http.StatusInternalServerError, "Failed to count duplicates", err)
			return
		}
		respond.JSON(w, http.StatusOK, counts)
	}
}

// ShowHandler lists duplicates: ?criterion=MacAddress&order=Id&direction=asc
func ShowHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodGet) {
			return
		}
		q := r.URL.Query()
		clients, err := s.Find(q.Get("criterion"), q.Get("order"), q.Get("direction"))
		if err != nil {
			respond.Error(w, logger, errorStatus(err), err.Error(), err)
			return
		}
		respond.JSON(w, http.StatusOK, clients)
	}
}

// DefaultOptions returns the merge options configured by the
// defaultMerge* preferences.
func DefaultOptions(prefs *preferences.Store) (MergeOptions, error) {
	var opts MergeOptions
	for _, d := range []struct {
		name   string
		target *bool
	}{
		{"defaultMergeCustomFields", &opts.CustomFields},
		{"defaultMergeConfig", &opts.Config},
		{"defaultMergeGroups", &opts.Groups},
		{"defaultMergePackages", &opts.Packages},
		{"defaultMergeProductKey", &opts.ProductKey},
	} {
		v, err := prefs.GetBool(d.name)
		if err != nil {
			return opts, err
		}
		*d.target = v
	}
	return opts, nil
}

// mergeRequest carries optional flags; omitted flags take the
// defaultMerge* preferences.
type mergeRequest struct {
	Clients      []int64 `json:"clients"`
	CustomFields *bool   `json:"mergeCustomFields"`
	Config       *bool   `json:"mergeConfig"`
	Groups       *bool   `json:"mergeGroups"`
	Packages     *bool   `json:"mergePackages"`
	ProductKey   *bool   `json:"mergeProductKey"`
}

// MergeHandler merges the posted clients.
func MergeHandler(s *Service, prefs *preferences.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodPost) {
			return
		}
		var req mergeRequest
		if !respond.DecodeJSON(w, r, &req) {
			return
		}

		opts, err := DefaultOptions(prefs)
		if err != nil {
			respond.Error(w, logger, http.StatusInternalServerError, "Failed to read merge defaults", err)
			return
		}
		for _, f := range []struct {
			requested *bool
			target    *bool
		}{
			{req.CustomFields, &opts.CustomFields},
			{req.Config, &opts.Config},
			{req.Groups, &opts.Groups},
			{req.Packages, &opts.Packages},
			{req.ProductKey, &opts.ProductKey},
		} {
			if f.requested != nil {
				*f.target = *f.requested
			}
		}

		result, err := s.Merge(req.Clients, opts)
		if err != nil {
			respond.Error(w, logger, errorStatus(err), err.Error(), err)
			return
		}
		if result == nil {
			respond.Message(w, http.StatusOK, "At least 2 different clients have to be selected.")
			return
		}
		respond.JSON(w, http.StatusOK, result)
	}
}

// AllowHandler excludes a value from duplicate searches.
func AllowHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			values, err := s.Allowed(r.URL.Query().Get("criterion"))
			if err != nil {
				respond.Error(w, logger, errorStatus(err), err.Error(), err)
				return
			}
			respond.JSON(w, http.StatusOK, values)
		case http.MethodPost:
			var req struct {
				Criterion string `json:"criterion"`
				Value     string `json:"value"`
			}
			if !respond.DecodeJSON(w, r, &req) {
				return
			}
			if err := s.Allow(req.Criterion, req.Value); err != nil {
				respond.Error(w, logger, errorStatus(err), err.Error(), err)
				return
			}
			respond.Message(w, http.StatusOK, "'"+req.Value+"' is no longer considered duplicate.")
		default:
			respond.RequireMethod(w, r, http.MethodGet, http.MethodPost)
		}
	}
}
