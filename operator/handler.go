package operator

import (
	"errors"
	"net/http"
	"strings"

	"braintacle/database"
	"braintacle/model"
	"braintacle/respond"

	"go.uber.org/zap"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidLogin), errors.Is(err, ErrInvalidPassword):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, database.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// LoginHandler authenticates an operator and starts a session.
func LoginHandler(s *Service, st *SessionStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodPost) {
			return
		}
		var req struct {
			Login    string `json:"login"`
			Password string `json:"password"`
		}
		if !respond.DecodeJSON(w, r, &req) {
			return
		}
		o, err := s.Authenticate(req.Login, req.Password)
		if err != nil {
			respond.Error(w, logger, errorStatus(err), "Invalid username or password", err)
			return
		}
		sess := st.Create(o.ID)
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    sess.Token,
			Path:     "/",
			Expires:  sess.Expires,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
		if logger != nil {
			logger.Info("Operator logged in", zap.String("operator", o.ID))
		}
		respond.JSON(w, http.StatusOK, sess)
	}
}

// LogoutHandler ends the current session.
func LogoutHandler(st *SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !respond.RequireMethod(w, r, http.MethodPost) {
			return
		}
		st.Delete(Token(r))
		http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
		respond.Message(w, http.StatusOK, "Logged out")
	}
}

type operatorRequest struct {
	Login       string `json:"login"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	MailAddress string `json:"mailAddress"`
	Comment     string `json:"comment"`
}

func (req operatorRequest) attrs() model.Operator {
	return model.Operator{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		MailAddress: req.MailAddress,
		Comment:     req.Comment,
	}
}

// OperatorsHandler lists operators on GET and creates one on POST.
func OperatorsHandler(s *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			operators, err := s.List()
			if err != nil {
				respond.Error(w, logger, http.StatusInternalServerError, "Failed to list operators", err)
				return
			}
			respond.JSON(w, http.StatusOK, operators)
		case http.MethodPost:
			var req operatorRequest
			if !respond.DecodeJSON(w, r, &req) {
				return
			}
			o, err := s.Create(req.Login, req.Password, req.attrs())
			if err != nil {
				respond.Error(w, logger, errorStatus(err), err.Error(), err)
				return
			}
			respond.JSON(w, http.StatusCreated, o)
		default:
			respond.RequireMethod(w, r, http.MethodGet, http.MethodPost)
		}
	}
}

// OperatorHandler serves /api/operators/{login}: GET shows, PUT updates
// attributes and, if given, the password, DELETE removes the account. An
// operator cannot delete their own account.
func OperatorHandler(s *Service, st *SessionStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/operators/"), "/")
		if login == "" {
			respond.Message(w, http.StatusBadRequest, "Missing login name")
			return
		}
		switch r.Method {
		case http.MethodGet:
			o, err := s.Get(login)
			if err != nil {
				respond.Error(w, logger, errorStatus(err), "Failed to get operator", err)
				return
			}
			respond.JSON(w, http.StatusOK, o)
		case http.MethodPut:
			var req operatorRequest
			if !respond.DecodeJSON(w, r, &req) {
				return
			}
			if err := s.Update(login, req.attrs()); err != nil {
				respond.Error(w, logger, errorStatus(err), "Failed to update operator", err)
				return
			}
			if req.Password != "" {
				if err := s.SetPassword(login, req.Password); err != nil {
					respond.Error(w, logger, errorStatus(err), "Failed to set password", err)
					return
				}
			}
			respond.Message(w, http.StatusOK, "Operator '"+login+"' was successfully updated.")
		case http.MethodDelete:
			if current, _ := FromContext(r.Context()); current == login {
				respond.Message(w, http.StatusForbidden, "Operators cannot delete their own account.")
				return
			}
			if err := s.Delete(login); err != nil {
				respond.Error(w, logger, errorStatus(err), "Failed to delete operator", err)
				return
			}
			st.DeleteOperator(login)
			respond.Message(w, http.StatusOK, "Operator '"+login+"' was successfully deleted.")
		default:
			respond.RequireMethod(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	}
}
