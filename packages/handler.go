package packages

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"braintacle/database"
	"braintacle/model"
	"braintacle/respond"

	"go.uber.org/zap"
)

// maxUploadSize limits the multipart body of build and update requests.
const maxUploadSize = 512 << 20

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidPlatform), errors.Is(err, ErrInvalidAction),
		errors.Is(err, ErrInvalidPriority), errors.Is(err, ErrMissingContent):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// readUpload parses a multipart request carrying the package attributes as
// JSON in the "package" field and the optional content in the "file" field.
// Omitted attributes take the default* preferences.
func readUpload(s *Service, r *http.Request) (*model.Package, []byte, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, nil, err
	}
	p, err := s.Defaults()
	if err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal([]byte(r.FormValue("package")), &p); err != nil {
		return nil, nil, err
	}
	file, _, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return &p, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, err
	}
	return &p, content, nil
}

// PackagesHandler lists packages on GET and builds one on POST.
func PackagesHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			packages, err := s.List()
			if err != nil {
				respond.Error(w, logger, http.StatusInternalServerError, "Failed to list packages", err)
				return
			}
			respond.JSON(w, http.StatusOK, packages)
		case http.MethodPost:
			r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
			p, content, err := readUpload(s, r)
			if err != nil {
				respond.Error(w, logger, http.StatusBadRequest, "Invalid package upload", err)
				return
			}
			if err := s.Build(p, content); err != nil {
				respond.Error(w, logger, errorStatus(err), "Package '"+p.Name+"' could not be built: "+err.Error(), err)
				return
			}
			respond.JSON(w, http.StatusCreated, p)
		default:
			respond.RequireMethod(w, r, http.MethodGet, http.MethodPost)
		}
	}
}

// PackageHandler serves /api/packages/{name}: GET shows, DELETE removes.
func PackageHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/packages/"), "/")
		if name == "" {
			respond.Message(w, http.StatusBadRequest, "Missing package name")
			return
		}
		switch r.Method {
		case http.MethodGet:
			p, err := s.Get(name)
			if err != nil {
				respond.Error(w, logger, errorStatus(err), "Failed to get package", err)
				return
			}
			assignments, err := s.Assignments(name)
			if err != nil {
				respond.Error(w, logger, errorStatus(err), "Failed to get package assignments", err)
				return
			}
			respond.JSON(w, http.StatusOK, map[string]interface{}{
				"package":     p,
				"assignments": assignments,
			})
		case http.MethodDelete:
			if err := s.Delete(name); err != nil {
				respond.Error(w, logger, errorStatus(err), "Package '"+name+"' could not be deleted.", err)
				return
			}
			respond.Message(w, http.StatusOK, "Package '"+name+"' was successfully deleted.")
		default:
			respond.RequireMethod(w, r, http.MethodGet, http.MethodDelete)
		}
	}
}

// UpdateHandler replaces a package. The multipart form carries "old" (the
// name of the package to replace), "package", "file" and optionally
// "deploy" with DeployFlags as JSON.
func UpdateHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodPost) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		p, content, err := readUpload(s, r)
		if err != nil {
			respond.Error(w, logger, http.StatusBadRequest, "Invalid package upload", err)
			return
		}
		flags, err := s.DefaultDeployFlags()
		if err != nil {
			respond.Error(w, logger, http.StatusInternalServerError, "Failed to read deploy defaults", err)
			return
		}
		if deploy := r.FormValue("deploy"); deploy != "" {
			if err := json.Unmarshal([]byte(deploy), &flags); err != nil {
				respond.Error(w, logger, http.StatusBadRequest, "Invalid deploy flags", err)
				return
			}
		}
		old := r.FormValue("old")
		if err := s.Update(old, p, content, flags); err != nil {
			respond.Error(w, logger, errorStatus(err), "Package '"+old+"' could not be updated: "+err.Error(), err)
			return
		}
		respond.JSON(w, http.StatusOK, p)
	}
}

// AssignHandler assigns a package to clients and groups on POST and removes
// the assignments on DELETE.
func AssignHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodPost, http.MethodDelete) {
			return
		}
		var req struct {
			Package string  `json:"package"`
			Clients []int64 `json:"clients"`
			Groups  []int64 `json:"groups"`
		}
		if !respond.DecodeJSON(w, r, &req) {
			return
		}
		assignClient, assignGroup := s.Assign, s.AssignToGroup
		message := "Package '" + req.Package + "' was successfully assigned."
		if r.Method == http.MethodDelete {
			assignClient, assignGroup = s.Unassign, s.UnassignFromGroup
			message = "Package '" + req.Package + "' was successfully removed."
		}
		for _, id := range req.Clients {
			if err := assignClient(req.Package, id); err != nil {
				respond.Error(w, logger, errorStatus(err), err.Error(), err)
				return
			}
		}
		for _, id := range req.Groups {
			if err := assignGroup(req.Package, id); err != nil {
				respond.Error(w, logger, errorStatus(err), err.Error(), err)
				return
			}
		}
		respond.Message(w, http.StatusOK, message)
	}
}
