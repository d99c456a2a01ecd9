package api

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *server) routes() {
	api := s.router.PathPrefix("/v1/metadata").Subrouter()
	api.HandleFunc("/ping", s.PingHandler).Methods("GET")
	api.HandleFunc("/version", s.VersionHandler).Methods("GET")
	api.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api.HandleFunc("/{account}/entities", s.EntityCreateHandler).Methods("POST")
	api.HandleFunc("/{account}/entities", s.EntityListHandler).Methods("GET")
	api.HandleFunc("/{account}/entities/{urn}", s.EntityShowHandler).Methods("GET")
	api.HandleFunc("/{account}/entities/{urn}", s.EntityUpdateHandler).Methods("PUT")
	api.HandleFunc("/{account}/entities/{urn}", s.EntityDeleteHandler).Methods("DELETE")
	api.HandleFunc("/{account}/entities/{urn}/deprecation", s.DeprecationUpdateHandler).Methods("PATCH")
	api.HandleFunc("/{account}/entities/{urn}/logs", s.EntityLogHandler).Methods("GET")
	api.HandleFunc("/{account}/deprecation", s.DeprecationBatchUpdateHandler).Methods("PATCH")
	api.HandleFunc("/{account}/search", s.SearchHandler).Methods("POST")
	api.HandleFunc("/{account}/ingest", s.IngestHandler).Methods("POST")
	api.HandleFunc("/{account}/graphql", s.GraphQLHandler).Methods("POST")
}
