package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"braintacle/charset"
	"braintacle/config"
	"braintacle/respond"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ConfigHandler returns the application configuration on GET and saves it
// to path on POST. Listen address and database changes take effect after a
// restart.
func ConfigHandler(path string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			respond.JSON(w, http.StatusOK, config.GetConfig())
		case http.MethodPost:
			newCfg := config.GetConfig()
			if !respond.DecodeJSON(w, r, &newCfg) {
				return
			}
			if err := validateConfig(newCfg); err != nil {
				respond.Error(w, logger, http.StatusBadRequest, err.Error(), err)
				return
			}
			if err := config.SaveConfig(path, newCfg); err != nil {
				respond.Error(w, logger, http.StatusInternalServerError, "Failed to save configuration", err)
				return
			}
			respond.Message(w, http.StatusOK, "The configuration was successfully saved.")
		default:
			respond.RequireMethod(w, r, http.MethodGet, http.MethodPost)
		}
	}
}

func validateConfig(c config.Config) error {
	if c.Logging.Level != "" {
		var level zapcore.Level
		if err := level.Set(c.Logging.Level); err != nil {
			return fmt.Errorf("invalid log level: %s", c.Logging.Level)
		}
	}
	if c.Session.Lifetime != "" {
		if d, err := time.ParseDuration(c.Session.Lifetime); err != nil || d <= 0 {
			return fmt.Errorf("invalid session lifetime: %s", c.Session.Lifetime)
		}
	}
	if _, err := charset.Lookup(c.Export.Encoding); err != nil {
		return err
	}
	return validateFolderPath(c.Packages.Path)
}

// validateFolderPath accepts an empty path or an existing directory.
func validateFolderPath(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New("directory not found: " + path)
		}
		return fmt.Errorf("failed to check directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return errors.New("not a directory: " + path)
	}
	return nil
}
