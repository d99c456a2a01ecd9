package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/YaleSpinup/mds-api/apierror"
	"github.com/YaleSpinup/mds-api/metadata"
	"github.com/gorilla/mux"

	log "github.com/sirupsen/logrus"
)

// DeprecationInput is the input for updating the deprecation status of an entity
type DeprecationInput struct {
	Deprecated bool   `json:"deprecated"`
	Note       string `json:"note"`
	// decommission time in milliseconds since the epoch
	DecommissionTime int64  `json:"decommission_time"`
	Actor            string `json:"actor"`
}

// BatchDeprecationInput is the input for updating the deprecation status of
// a batch of entities
type BatchDeprecationInput struct {
	URNs             []string `json:"urns"`
	Deprecated       bool     `json:"deprecated"`
	Note             string   `json:"note"`
	DecommissionTime int64    `json:"decommission_time"`
	Actor            string   `json:"actor"`
}

// updateEntityDeprecation applies a deprecation update to a single entity,
// persists the document and refreshes the search index
func updateEntityDeprecation(ctx context.Context, service *metadata.Service, account, urn string, input DeprecationInput) (*metadata.Metadata, error) {
	m, err := service.MetadataRepository.Get(ctx, account, urn)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if input.Deprecated {
		deprecation := &metadata.Deprecation{
			Deprecated: true,
			Note:       input.Note,
			Actor:      input.Actor,
		}

		if input.DecommissionTime > 0 {
			t := time.UnixMilli(input.DecommissionTime).UTC()
			deprecation.DecommissionTime = &t
		}

		m.Deprecation = deprecation
	} else {
		// clearing deprecation also drops the note and decommission time
		m.Deprecation = nil
	}

	m.ModifiedAt = &now
	m.ModifiedBy = input.Actor

	out, err := service.MetadataRepository.Update(ctx, account, urn, m)
	if err != nil {
		return nil, err
	}

	if err := service.SearchIndex.Index(account, out); err != nil {
		return nil, err
	}

	return out, nil
}

// DeprecationUpdateHandler updates the deprecation status of an entity
func (s *server) DeprecationUpdateHandler(w http.ResponseWriter, r *http.Request) {
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

	input := DeprecationInput{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		msg := fmt.Sprintf("cannot decode body into deprecation input: %s", err)
		handleError(w, apierror.New(apierror.ErrBadRequest, msg, err))
		return
	}

	out, err := updateEntityDeprecation(r.Context(), service, account, urn, input)
	if err != nil {
		handleError(w, err)
		return
	}

	auditLog := service.AuditLogRepository.Log(r.Context(), account, out.EntityType)
	if input.Deprecated {
		auditLog <- fmt.Sprintf("%s deprecated entity %s by %s: %s", service.NewAuditID(), urn, input.Actor, input.Note)
	} else {
		auditLog <- fmt.Sprintf("%s cleared deprecation on entity %s by %s", service.NewAuditID(), urn, input.Actor)
	}

	j, err := json.Marshal(out)
	if err != nil {
		log.Errorf("cannot marshal response (%v) into JSON: %s", out, err)
		handleError(w, apierror.New(apierror.ErrInternalError, "unable to marshal response", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(j)
}

// DeprecationBatchUpdateHandler updates the deprecation status of a batch of
// entities.  All of the urns in the batch are validated before any of them
// are updated so a bad urn in the input fails the whole batch.
func (s *server) DeprecationBatchUpdateHandler(w http.ResponseWriter, r *http.Request) {
	w = LogWriter{w}
	vars := mux.Vars(r)
	account := vars["account"]
	service, ok := s.metadataServices[account]
	if !ok {
		msg := fmt.Sprintf("account not found: %s", account)
		handleError(w, apierror.New(apierror.ErrNotFound, msg, nil))
		return
	}

	input := BatchDeprecationInput{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		msg := fmt.Sprintf("cannot decode body into batch deprecation input: %s", err)
		handleError(w, apierror.New(apierror.ErrBadRequest, msg, err))
		return
	}

	if len(input.URNs) == 0 {
		handleError(w, apierror.New(apierror.ErrBadRequest, "urns cannot be empty", nil))
		return
	}

	// validate the whole batch before applying any updates
	var missing []string
	for _, urn := range input.URNs {
		if _, err := service.MetadataRepository.Get(r.Context(), account, urn); err != nil {
			missing = append(missing, urn)
		}
	}

	if len(missing) > 0 {
		msg := fmt.Sprintf("entities not found: %s", strings.Join(missing, ", "))
		handleError(w, apierror.New(apierror.ErrNotFound, msg, nil))
		return
	}

	single := DeprecationInput{
		Deprecated:       input.Deprecated,
		Note:             input.Note,
		DecommissionTime: input.DecommissionTime,
		Actor:            input.Actor,
	}

	updated := make([]string, 0, len(input.URNs))
	for _, urn := range input.URNs {
		out, err := updateEntityDeprecation(r.Context(), service, account, urn, single)
		if err != nil {
			handleError(w, err)
			return
		}
		updated = append(updated, out.URN)

		auditLog := service.AuditLogRepository.Log(r.Context(), account, out.EntityType)
		if input.Deprecated {
			auditLog <- fmt.Sprintf("%s deprecated entity %s by %s: %s", service.NewAuditID(), urn, input.Actor, input.Note)
		} else {
			auditLog <- fmt.Sprintf("%s cleared deprecation on entity %s by %s", service.NewAuditID(), urn, input.Actor)
		}
	}

	output := struct {
		Updated int      `json:"updated"`
		URNs    []string `json:"urns"`
	}{len(updated), updated}

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
