package main

import (
	"net/http"

	"braintacle/client"
	"braintacle/config"
	"braintacle/duplicates"
	"braintacle/group"
	"braintacle/operator"
	"braintacle/packages"
	"braintacle/preferences"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SetupRoutes registers every API endpoint on mux. Authentication is
// applied by the caller around mux.
func SetupRoutes(mux *http.ServeMux, db *sqlx.DB, sessions *operator.SessionStore, logger *zap.Logger) {
	prefs := preferences.NewStore(db)

	operators := operator.NewService(db, logger)
	mux.HandleFunc("/api/login", operator.LoginHandler(operators, sessions, logger))
	mux.HandleFunc("/api/logout", operator.LogoutHandler(sessions))
	mux.HandleFunc("/api/operators", operator.OperatorsHandler(operators, logger))
	mux.HandleFunc("/api/operators/", operator.OperatorHandler(operators, sessions, logger))

	clients := client.NewService(db, prefs.LockValidity, logger)
	mux.HandleFunc("/api/clients", client.ListHandler(clients, logger))
	mux.HandleFunc("/api/clients/", client.ShowHandler(clients, logger))
	mux.HandleFunc("/api/clients/export", client.ExportHandler(clients, logger))
	mux.HandleFunc("/api/clients/delete", client.DeleteHandler(clients, logger))
	mux.HandleFunc("/api/clients/customfields", client.CustomFieldsHandler(clients, logger))
	mux.HandleFunc("/api/clients/config", client.ConfigHandler(clients, logger))
	mux.HandleFunc("/api/clients/productkey", client.ProductKeyHandler(clients, logger))

	dups := duplicates.NewService(db, prefs.LockValidity, logger)
	mux.HandleFunc("/api/duplicates", duplicates.CountHandler(dups, logger))
	mux.HandleFunc("/api/duplicates/show", duplicates.ShowHandler(dups, logger))
	mux.HandleFunc("/api/duplicates/merge", duplicates.MergeHandler(dups, prefs, logger))
	mux.HandleFunc("/api/duplicates/allow", duplicates.AllowHandler(dups, logger))

	groups := group.NewService(db, prefs, logger)
	mux.HandleFunc("/api/groups", group.GroupsHandler(groups, logger))
	mux.HandleFunc("/api/groups/", group.GroupHandler(groups, logger))
	mux.HandleFunc("/api/groups/members", group.MembersHandler(groups, logger))
	mux.HandleFunc("/api/groups/memberships", group.MembershipsHandler(groups, logger))
	mux.HandleFunc("/api/groups/cache", group.UpdateCacheHandler(groups, logger))

	var pkgOpts []packages.Option
	if path := config.GetConfig().Packages.Path; path != "" {
		pkgOpts = append(pkgOpts, packages.WithPath(path))
	}
	pkgs := packages.NewService(db, prefs, logger, pkgOpts...)
	mux.HandleFunc("/api/packages", packages.PackagesHandler(pkgs, logger))
	mux.HandleFunc("/api/packages/", packages.PackageHandler(pkgs, logger))
	mux.HandleFunc("/api/packages/update", packages.UpdateHandler(pkgs, logger))
	mux.HandleFunc("/api/packages/assign", packages.AssignHandler(pkgs, logger))

	mux.HandleFunc("/api/preferences", preferences.Handler(prefs, logger))
	mux.HandleFunc("/api/config", ConfigHandler(configPath, logger))
}
