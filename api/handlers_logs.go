package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/YaleSpinup/mds-api/apierror"
	"github.com/YaleSpinup/mds-api/metadata"
	"github.com/gorilla/mux"

	log "github.com/sirupsen/logrus"
)

// EntityLogHandler returns the audit log events for an entity.  Audit events
// are written to a stream per entity type, so the events get filtered down to
// the ones mentioning the requested urn.
func (s *server) EntityLogHandler(w http.ResponseWriter, r *http.Request) {
	w = LogWriter{w}
	vars := mux.Vars(r)
	account := vars["account"]
	service, ok := s.metadataServices[account]
	if !ok {
		msg := fmt.Sprintf("account not found: %s", account)
		handleError(w, apierror.New(apierror.ErrNotFound, msg, nil))
		return
	}

	urn, err := url.QueryUnescape(vars["urn"])
	if err != nil {
		handleError(w, apierror.New(apierror.ErrBadRequest, "invalid urn", err))
		return
	}

	entityType, err := metadata.EntityType(urn)
	if err != nil {
		handleError(w, apierror.New(apierror.ErrBadRequest, "invalid urn", err))
		return
	}

	events, err := service.AuditLogRepository.GetLog(r.Context(), account, entityType)
	if err != nil {
		handleError(w, err)
		return
	}

	filtered := []string{}
	for _, e := range events {
		if strings.Contains(e, urn) {
			filtered = append(filtered, e)
		}
	}

	output := struct {
		URN    string   `json:"urn"`
		Events []string `json:"events"`
	}{urn, filtered}

	j, err := json.Marshal(output)
	if err != nil {
		log.Errorf("cannot marshal response (%v) into JSON: %s", output, err)
		handleError(w, apierror.New(apierror.ErrInternalError, "unable to marshal response", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(j)
}
