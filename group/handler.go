package group

import (
	"errors"
	"net/http"
	"strconv"

	"braintacle/database"
	"braintacle/model"
	"braintacle/respond"

	"go.uber.org/zap"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidCriteria), errors.Is(err, ErrInvalidMembership):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// membershipTypes maps API names to stored membership types.
var membershipTypes = map[string]int{
	"manual":   model.MembershipManual,
	"excluded": model.MembershipNever,
}

// GroupsHandler lists groups on GET and creates one on POST.
func GroupsHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			groups, err := s.List()
			if err != nil {
				respond.Error(w, logger, http.StatusInternalServerError, "Failed to list groups", err)
				return
			}
			respond.JSON(w, http.StatusOK, groups)
		case http.MethodPost:
			var req struct {
				Name        string `json:"name"`
				Description string `json:"description"`
				Criteria    string `json:"criteria"`
			}
			if !respond.DecodeJSON(w, r, &req) {
				return
			}
			g, err := s.Create(req.Name, req.Description, req.Criteria)
			if err != nil {
				respond.Error(w, logger, errorStatus(err), err.Error(), err)
				return
			}
			respond.JSON(w, http.StatusCreated, g)
		default:
			respond.RequireMethod(w, r, http.MethodGet, http.MethodPost)
		}
	}
}

// GroupHandler serves /api/groups/{id}: GET shows, DELETE removes.
func GroupHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := respond.PathID(r, "/api/groups/")
		if !ok {
			respond.Message(w, http.StatusBadRequest, "Invalid group id")
			return
		}
		switch r.Method {
		case http.MethodGet:
			g, err := s.Get(id)
			if err != nil {
				respond.Error(w, logger, errorStatus(err), "Failed to get group", err)
				return
			}
			respond.JSON(w, http.StatusOK, g)
		case http.MethodDelete:
			if err := s.Delete(id); err != nil {
				respond.Error(w, logger, errorStatus(err), "Group could not be deleted.", err)
				return
			}
			respond.Message(w, http.StatusOK, "Group was successfully deleted.")
		default:
			respond.RequireMethod(w, r, http.MethodGet, http.MethodDelete)
		}
	}
}

// MembersHandler returns the members of a group: ?id=
func MembersHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodGet) {
			return
		}
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil {
			respond.Message(w, http.StatusBadRequest, "Invalid group id")
			return
		}
		clients, err := s.Members(id)
		if err != nil {
			respond.Error(w, logger, errorStatus(err), "Failed to get group members", err)
			return
		}
		respond.JSON(w, http.StatusOK, clients)
	}
}

// MembershipsHandler sets static memberships on POST and removes a
// membership on DELETE.
func MembershipsHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Group   int64   `json:"group"`
			Clients []int64 `json:"clients"`
			Type    string  `json:"type"`
		}
		switch r.Method {
		case http.MethodPost:
			if !respond.DecodeJSON(w, r, &req) {
				return
			}
			membershipType, ok := membershipTypes[req.Type]
			if !ok {
				respond.Message(w, http.StatusBadRequest, "Invalid membership type: "+req.Type)
				return
			}
			if err := s.SetMemberships(req.Group, req.Clients, membershipType); err != nil {
				respond.Error(w, logger, errorStatus(err), err.Error(), err)
				return
			}
			respond.Message(w, http.StatusOK, "Memberships were successfully updated.")
		case http.MethodDelete:
			if !respond.DecodeJSON(w, r, &req) {
				return
			}
			for _, id := range req.Clients {
				if err := s.RemoveMembership(req.Group, id); err != nil {
					respond.Error(w, logger, errorStatus(err), "Failed to remove membership", err)
					return
				}
			}
			respond.Message(w, http.StatusOK, "Memberships were successfully removed.")
		default:
			respond.RequireMethod(w, r, http.MethodPost, http.MethodDelete)
		}
	}
}

// UpdateCacheHandler forces a cache rebuild of one group.
func UpdateCacheHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodPost) {
			return
		}
		var req struct {
			ID int64 `json:"id"`
		}
		if !respond.DecodeJSON(w, r, &req) {
			return
		}
		if err := s.UpdateCache(req.ID, true); err != nil {
			respond.Error(w, logger, errorStatus(err), "Failed to update group cache", err)
			return
		}
		respond.Message(w, http.StatusOK, "Group cache was successfully updated.")
	}
}
