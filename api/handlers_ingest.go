package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/YaleSpinup/mds-api/apierror"
	"github.com/YaleSpinup/mds-api/metadata"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
)

// IngestHandler accepts a metadata change proposal and applies it to the
// targeted entity.  An UPSERT of the datasetProperties aspect for an unknown
// dataset urn creates the metadata document, any other aspect requires the
// entity to exist.
func (s *server) IngestHandler(w http.ResponseWriter, r *http.Request) {
	w = LogWriter{w}
	vars := mux.Vars(r)
	account := vars["account"]
	service, ok := s.metadataServices[account]
	if !ok {
		msg := fmt.Sprintf("account not found: %s", account)
		handleError(w, apierror.New(apierror.ErrNotFound, msg, nil))
		return
	}

	proposal := metadata.ChangeProposal{}
	if err := json.NewDecoder(r.Body).Decode(&proposal); err != nil {
		msg := fmt.Sprintf("cannot decode body into change proposal: %s", err)
		handleError(w, apierror.New(apierror.ErrBadRequest, msg, err))
		return
	}

	if err := proposal.Validate(); err != nil {
		msg := fmt.Sprintf("invalid change proposal: %s", err)
		handleError(w, apierror.New(apierror.ErrBadRequest, msg, err))
		return
	}

	log.Infof("applying %s of aspect %s to %s for account %s", proposal.ChangeType, proposal.AspectName, proposal.EntityURN, account)

	created := false
	m, err := service.MetadataRepository.Get(r.Context(), account, proposal.EntityURN)
	if err != nil {
		aerr, ok := errors.Cause(err).(apierror.Error)
		if !ok || aerr.Code != apierror.ErrNotFound {
			handleError(w, err)
			return
		}

		if proposal.ChangeType != metadata.ChangeTypeUpsert || proposal.AspectName != metadata.AspectDatasetProperties {
			msg := fmt.Sprintf("entity not found: %s", proposal.EntityURN)
			handleError(w, apierror.New(apierror.ErrNotFound, msg, err))
			return
		}

		parsed, perr := metadata.ParseDatasetURN(proposal.EntityURN)
		if perr != nil {
			msg := fmt.Sprintf("cannot create entity from proposal: %s", perr)
			handleError(w, apierror.New(apierror.ErrBadRequest, msg, perr))
			return
		}

		now := time.Now().UTC()
		m = &metadata.Metadata{
			URN:        proposal.EntityURN,
			EntityType: metadata.EntityTypeDataset,
			Name:       parsed.Name,
			Platform:   parsed.Platform,
			Env:        parsed.Env,
			CreatedAt:  &now,
		}
		created = true
	}

	if err := proposal.Apply(m); err != nil {
		msg := fmt.Sprintf("cannot apply change proposal: %s", err)
		handleError(w, apierror.New(apierror.ErrBadRequest, msg, err))
		return
	}

	var out *metadata.Metadata
	if created {
		out, err = service.MetadataRepository.Create(r.Context(), account, proposal.EntityURN, m)
	} else {
		now := time.Now().UTC()
		m.ModifiedAt = &now
		out, err = service.MetadataRepository.Update(r.Context(), account, proposal.EntityURN, m)
	}

	if err != nil {
		handleError(w, err)
		return
	}

	if err := service.SearchIndex.Index(account, out); err != nil {
		handleError(w, err)
		return
	}

	auditLog := service.AuditLogRepository.Log(r.Context(), account, out.EntityType)
	auditLog <- fmt.Sprintf("%s ingested %s of aspect %s for entity %s", service.NewAuditID(), proposal.ChangeType, proposal.AspectName, proposal.EntityURN)

	output := struct {
		URN        string `json:"urn"`
		AspectName string `json:"aspect_name"`
		ChangeType string `json:"change_type"`
		Created    bool   `json:"created"`
	}{out.URN, proposal.AspectName, proposal.ChangeType, created}

	j, err := json.Marshal(output)
	if err != nil {
		log.Errorf("cannot marshal response (%v) into JSON: %s", output, err)
		handleError(w, apierror.New(apierror.ErrInternalError, "unable to marshal response", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if created {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	w.Write(j)
}
