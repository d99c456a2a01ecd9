package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/YaleSpinup/mds-api/apierror"
	"github.com/YaleSpinup/mds-api/metadata"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/gorilla/mux"

	log "github.com/sirupsen/logrus"
)

// auditLogRetention is the default retention (in days) for entity audit logs
const auditLogRetention = int64(90)

// EntityCreateInput is the input for creating a new dataset entity
type EntityCreateInput struct {
	Name             string            `json:"name"`
	Platform         string            `json:"platform"`
	Env              string            `json:"env"`
	Description      string            `json:"description"`
	SubTypes         []string          `json:"sub_types"`
	CustomProperties map[string]string `json:"custom_properties"`
	Tags             []string          `json:"tags"`
	CreatedBy        string            `json:"created_by"`
}

// EntityUpdateInput is the input for updating mutable fields of an entity
type EntityUpdateInput struct {
	Description      *string           `json:"description"`
	SubTypes         []string          `json:"sub_types"`
	CustomProperties map[string]string `json:"custom_properties"`
	Tags             []string          `json:"tags"`
	ModifiedBy       string            `json:"modified_by"`
}

// EntityCreateHandler creates a new dataset entity:
// * generates the dataset urn from the platform, name and environment
// * writes the metadata document to the metadata repository
// * ensures the audit log for the entity type exists
// * indexes the new entity in the search index
func (s *server) EntityCreateHandler(w http.ResponseWriter, r *http.Request) {
	w = LogWriter{w}
	vars := mux.Vars(r)
	account := vars["account"]
	service, ok := s.metadataServices[account]
	if !ok {
		msg := fmt.Sprintf("account not found: %s", account)
		handleError(w, apierror.New(apierror.ErrNotFound, msg, nil))
		return
	}

	input := EntityCreateInput{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		msg := fmt.Sprintf("cannot decode body into create entity input: %s", err)
		handleError(w, apierror.New(apierror.ErrBadRequest, msg, err))
		return
	}

	if input.Name == "" || input.Platform == "" {
		handleError(w, apierror.New(apierror.ErrBadRequest, "name and platform are required", nil))
		return
	}

	if input.Env == "" {
		input.Env = metadata.DefaultEnv
	}
	input.Env = strings.ToUpper(input.Env)
	if !metadata.ValidEnv(input.Env) {
		msg := fmt.Sprintf("invalid environment: %s", input.Env)
		handleError(w, apierror.New(apierror.ErrBadRequest, msg, nil))
		return
	}

	urn := metadata.MakeDatasetURN(input.Platform, input.Name, input.Env)

	tags := make([]string, 0, len(input.Tags))
	for _, t := range input.Tags {
		tags = append(tags, metadata.MakeTagURN(t))
	}

	now := time.Now().UTC()
	m := &metadata.Metadata{
		URN:              urn,
		EntityType:       metadata.EntityTypeDataset,
		Name:             input.Name,
		Platform:         input.Platform,
		Env:              input.Env,
		Description:      input.Description,
		SubTypes:         input.SubTypes,
		BrowsePaths:      []string{"/" + strings.ToLower(input.Env) + "/" + input.Platform + "/" + input.Name},
		CustomProperties: input.CustomProperties,
		Tags:             tags,
		CreatedAt:        &now,
		CreatedBy:        input.CreatedBy,
	}

	// setup rollback function list and defer execution
	var err error
	var rollBackTasks []func() error
	defer func() {
		if err != nil {
			log.Errorf("recovering from failed entity creation: %s", err)
			rollBack(&rollBackTasks)
		}
	}()

	out, err := service.MetadataRepository.Create(r.Context(), account, urn, m)
	if err != nil {
		handleError(w, err)
		return
	}

	// append delete of the metadata document to rollback tasks
	rollBackTasks = append(rollBackTasks, func() error {
		return service.MetadataRepository.Delete(s.context, account, urn)
	})

	if err = service.AuditLogRepository.CreateLog(r.Context(), account, metadata.EntityTypeDataset, auditLogRetention, []*metadata.Tag{
		{
			Key:   aws.String("Account"),
			Value: aws.String(account),
		},
		{
			Key:   aws.String("OrgName"),
			Value: aws.String(Org),
		},
	}); err != nil {
		handleError(w, err)
		return
	}

	if err = service.SearchIndex.Index(account, out); err != nil {
		handleError(w, err)
		return
	}

	auditLog := service.AuditLogRepository.Log(r.Context(), account, metadata.EntityTypeDataset)
	auditLog <- fmt.Sprintf("%s created entity %s by %s", service.NewAuditID(), urn, input.CreatedBy)

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

// EntityListHandler lists the entity urns for an account
func (s *server) EntityListHandler(w http.ResponseWriter, r *http.Request) {
	w = LogWriter{w}
	vars := mux.Vars(r)
	account := vars["account"]
	service, ok := s.metadataServices[account]
	if !ok {
		msg := fmt.Sprintf("account not found: %s", account)
		handleError(w, apierror.New(apierror.ErrNotFound, msg, nil))
		return
	}

	urns, err := service.MetadataRepository.List(r.Context(), account)
	if err != nil {
		handleError(w, err)
		return
	}

	total := len(urns)

	start := 0
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = strconv.Atoi(v); err != nil || start < 0 {
			handleError(w, apierror.New(apierror.ErrBadRequest, "invalid start", err))
			return
		}
	}

	limit := total
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			handleError(w, apierror.New(apierror.ErrBadRequest, "invalid limit", err))
			return
		}
	}

	if start > total {
		start = total
	}

	end := start + limit
	if end > total {
		end = total
	}
	urns = urns[start:end]

	output := struct {
		Account string   `json:"account"`
		Total   int      `json:"total"`
		URNs    []string `json:"urns"`
	}{account, total, urns}

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

// EntityShowHandler gets a metadata document by urn
func (s *server) EntityShowHandler(w http.ResponseWriter, r *http.Request) {
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

	out, err := service.MetadataRepository.Get(r.Context(), account, urn)
	if err != nil {
		handleError(w, err)
		return
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

// EntityUpdateHandler updates the mutable fields of a metadata document and
// refreshes the search index with the new document
func (s *server) EntityUpdateHandler(w http.ResponseWriter, r *http.Request) {
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

	input := EntityUpdateInput{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		msg := fmt.Sprintf("cannot decode body into update entity input: %s", err)
		handleError(w, apierror.New(apierror.ErrBadRequest, msg, err))
		return
	}

	m, err := service.MetadataRepository.Get(r.Context(), account, urn)
	if err != nil {
		handleError(w, err)
		return
	}

	if input.Description != nil {
		m.Description = *input.Description
	}

	if input.SubTypes != nil {
		m.SubTypes = input.SubTypes
	}

	if input.CustomProperties != nil {
		m.CustomProperties = input.CustomProperties
	}

	if input.Tags != nil {
		tags := make([]string, 0, len(input.Tags))
		for _, t := range input.Tags {
			tags = append(tags, metadata.MakeTagURN(t))
		}
		m.Tags = tags
	}

	now := time.Now().UTC()
	m.ModifiedAt = &now
	m.ModifiedBy = input.ModifiedBy

	out, err := service.MetadataRepository.Update(r.Context(), account, urn, m)
	if err != nil {
		handleError(w, err)
		return
	}

	if err := service.SearchIndex.Index(account, out); err != nil {
		handleError(w, err)
		return
	}

	auditLog := service.AuditLogRepository.Log(r.Context(), account, out.EntityType)
	auditLog <- fmt.Sprintf("%s updated entity %s by %s", service.NewAuditID(), urn, input.ModifiedBy)

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

// EntityDeleteHandler deletes a metadata document.  By default the delete is
// a soft delete: the document is marked removed and drops out of search
// results but stays in the metadata repository and can be restored.  Passing
// ?hard=true removes the document from the repository and the search index
// permanently.
func (s *server) EntityDeleteHandler(w http.ResponseWriter, r *http.Request) {
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

	m, err := service.MetadataRepository.Get(r.Context(), account, urn)
	if err != nil {
		handleError(w, err)
		return
	}

	if r.URL.Query().Get("hard") == "true" {
		if err := service.MetadataRepository.Delete(r.Context(), account, urn); err != nil {
			handleError(w, err)
			return
		}

		service.SearchIndex.Remove(account, urn)

		auditLog := service.AuditLogRepository.Log(r.Context(), account, m.EntityType)
		auditLog <- fmt.Sprintf("%s hard deleted entity %s", service.NewAuditID(), urn)

		w.WriteHeader(http.StatusNoContent)
		return
	}

	now := time.Now().UTC()
	m.Removed = true
	m.ModifiedAt = &now

	out, err := service.MetadataRepository.Update(r.Context(), account, urn, m)
	if err != nil {
		handleError(w, err)
		return
	}

	// soft deleted entities stay in the index and get filtered out of
	// search results unless explicitly requested
	if err := service.SearchIndex.Index(account, out); err != nil {
		handleError(w, err)
		return
	}

	auditLog := service.AuditLogRepository.Log(r.Context(), account, out.EntityType)
	auditLog <- fmt.Sprintf("%s soft deleted entity %s", service.NewAuditID(), urn)

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
