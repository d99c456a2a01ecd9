package api

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/YaleSpinup/mds-api/common"
	"github.com/YaleSpinup/mds-api/cwauditlogrepository"
	"github.com/YaleSpinup/mds-api/metadata"
	"github.com/YaleSpinup/mds-api/s3metadatarepository"
	"github.com/YaleSpinup/mds-api/searchindex"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	log "github.com/sirupsen/logrus"
)

func init() {
	rand.Seed(time.Now().UnixNano())
}

type server struct {
	metadataServices map[string]*metadata.Service
	router           *mux.Router
	version          common.Version
	context          context.Context
}

// Org will carry throughout the api and get tagged on resources
var Org string

// NewServer creates a new server and starts it
func NewServer(config common.Config) error {
	// setup server context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := server{
		metadataServices: make(map[string]*metadata.Service),
		router:           mux.NewRouter(),
		version:          config.Version,
		context:          ctx,
	}

	if config.Org == "" {
		return errors.New("'org' cannot be empty in the configuration")
	}
	Org = config.Org
	repository := config.MetadataRepository

	// Initialize metadata repository session
	log.Debugf("Creating new session for MetadataRepository of type %s with configuration %+v (org: %s)", repository.Type, repository.Config, Org)

	var metadataRepo metadata.MetadataRepository
	var err error

	switch repository.Type {
	case "s3":
		prefix := Org
		if c, ok := repository.Config["prefix"]; ok {
			if p, ok := c.(string); ok {
				prefix = p + "/" + prefix
			}
		}
		repository.Config["prefix"] = prefix

		metadataRepo, err = s3metadatarepository.NewDefaultRepository(repository.Config)
		if err != nil {
			return err
		}
	default:
		return errors.New("failed to determine metadata repository type, or type not supported: " + repository.Type)
	}

	// the search index is shared across accounts and rebuilt from the
	// metadata repository at startup
	index := searchindex.New()

	// Create metadata service sessions
	for name, a := range config.Accounts {
		log.Debugf("Creating new metadata service for account '%s' with key '%s' in region '%s' (org: %s)", name, a.Akid, a.Region, Org)

		// Initialize audit log repository session and set log prefixes
		auditLogRepo, err := cwauditlogrepository.NewDefaultRepository(map[string]interface{}{
			"akid":   a.Akid,
			"secret": a.Secret,
			"region": a.Region,
		})
		if err != nil {
			return err
		}
		auditLogRepo.GroupPrefix = "/metadata/" + Org + "/"
		auditLogRepo.StreamPrefix = "entity-"

		s.metadataServices[name] = metadata.NewService(
			metadata.WithMetadataRepository(metadataRepo),
			metadata.WithSearchIndex(index),
			metadata.WithAuditLogRepository(auditLogRepo),
		)

		if err := hydrateIndex(ctx, name, metadataRepo, index); err != nil {
			log.Warnf("failed to hydrate search index for account %s: %s", name, err)
		}
	}

	publicURLs := map[string]string{
		"/v1/metadata/ping":    "public",
		"/v1/metadata/version": "public",
		"/v1/metadata/metrics": "public",
	}

	// load routes
	s.routes()

	if config.ListenAddress == "" {
		config.ListenAddress = ":8080"
	}
	handler := handlers.RecoveryHandler()(handlers.LoggingHandler(os.Stdout, TokenMiddleware([]byte(config.Token), publicURLs, s.router)))
	srv := &http.Server{
		Handler:      handler,
		Addr:         config.ListenAddress,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	log.Infof("Starting listener on %s", config.ListenAddress)
	if err := srv.ListenAndServe(); err != nil {
		return err
	}

	return nil
}

// hydrateIndex loads all of the account's metadata documents into the search index
func hydrateIndex(ctx context.Context, account string, repo metadata.MetadataRepository, index metadata.SearchIndex) error {
	urns, err := repo.List(ctx, account)
	if err != nil {
		return err
	}

	log.Infof("hydrating search index with %d entities for account %s", len(urns), account)

	for _, urn := range urns {
		m, err := repo.Get(ctx, account, urn)
		if err != nil {
			log.Warnf("failed to load metadata document %s for account %s: %s", urn, account, err)
			continue
		}

		if err := index.Index(account, m); err != nil {
			log.Warnf("failed to index entity %s for account %s: %s", urn, account, err)
		}
	}

	return nil
}

// LogWriter is an http.ResponseWriter
type LogWriter struct {
	http.ResponseWriter
}

// Write log message if http response writer returns an error
func (w LogWriter) Write(p []byte) (n int, err error) {
	n, err = w.ResponseWriter.Write(p)
	if err != nil {
		log.Errorf("Write failed: %v", err)
	}
	return
}

// rollBack executes functions from a stack of rollback functions
func rollBack(t *[]func() error) {
	if t == nil {
		return
	}

	tasks := *t
	log.Errorf("executing rollback of %d tasks", len(tasks))
	for i := len(tasks) - 1; i >= 0; i-- {
		f := tasks[i]
		if funcerr := f(); funcerr != nil {
			log.Errorf("rollback task error: %s, continuing rollback", funcerr)
		}
	}
}
