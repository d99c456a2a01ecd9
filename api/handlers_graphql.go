package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/YaleSpinup/mds-api/apierror"
	"github.com/YaleSpinup/mds-api/metadata"
	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	log "github.com/sirupsen/logrus"
)

// GraphQLRequest is the envelope posted to the graphql endpoint
type GraphQLRequest struct {
	Query     string          `json:"query"`
	Variables json.RawMessage `json:"variables"`
}

// graphQLEntity is the entity shape returned inside graphql search results
type graphQLEntity struct {
	URN  string `json:"urn"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// graphQLSearchResult is the search result shape returned by the graphql
// search operations
type graphQLSearchResult struct {
	Start         int `json:"start"`
	Count         int `json:"count"`
	Total         int `json:"total"`
	SearchResults []struct {
		Entity graphQLEntity `json:"entity"`
	} `json:"searchResults"`
}

// GraphQLHandler dispatches the supported graphql operations onto the native
// metadata services.  It understands the documented query shapes for search,
// searchAcrossEntities, updateDeprecation and batchUpdateDeprecation and
// returns graphql style {"data": ...} and {"errors": [...]} envelopes.
func (s *server) GraphQLHandler(w http.ResponseWriter, r *http.Request) {
	w = LogWriter{w}
	vars := mux.Vars(r)
	account := vars["account"]
	service, ok := s.metadataServices[account]
	if !ok {
		msg := fmt.Sprintf("account not found: %s", account)
		handleError(w, apierror.New(apierror.ErrNotFound, msg, nil))
		return
	}

	req := GraphQLRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := fmt.Sprintf("cannot decode body into graphql request: %s", err)
		handleError(w, apierror.New(apierror.ErrBadRequest, msg, err))
		return
	}

	op := graphQLOperation(req.Query)
	log.Debugf("dispatching graphql operation '%s' for account %s", op, account)

	switch op {
	case "searchAcrossEntities":
		s.graphQLSearch(w, r, service, account, req, op)
	case "search":
		s.graphQLSearch(w, r, service, account, req, op)
	case "updateDeprecation":
		s.graphQLUpdateDeprecation(w, r, service, account, req)
	case "batchUpdateDeprecation":
		s.graphQLBatchUpdateDeprecation(w, r, service, account, req)
	default:
		graphQLError(w, fmt.Sprintf("unsupported graphql operation in query: %s", req.Query))
	}
}

// graphQLOperation picks the operation out of a graphql query document.  The
// longer operation names are checked first since they share prefixes with the
// shorter ones.
func graphQLOperation(query string) string {
	for _, op := range []string{"batchUpdateDeprecation", "updateDeprecation", "searchAcrossEntities", "search"} {
		if strings.Contains(query, op) {
			return op
		}
	}
	return ""
}

func (s *server) graphQLSearch(w http.ResponseWriter, r *http.Request, service *metadata.Service, account string, req GraphQLRequest, op string) {
	input := gjson.GetBytes(req.Variables, "input")

	searchInput := metadata.SearchInput{
		Query:   input.Get("query").String(),
		Start:   int(input.Get("start").Int()),
		Count:   int(input.Get("count").Int()),
		Filters: map[string]string{},
	}

	// the single entity search takes a type, searchAcrossEntities takes an
	// optional list of types
	if t := input.Get("type"); t.Exists() {
		searchInput.EntityTypes = []string{strings.ToLower(t.String())}
	}

	if types := input.Get("types"); types.IsArray() {
		types.ForEach(func(_, value gjson.Result) bool {
			searchInput.EntityTypes = append(searchInput.EntityTypes, strings.ToLower(value.String()))
			return true
		})
	}

	if filters := input.Get("filters"); filters.IsArray() {
		filters.ForEach(func(_, value gjson.Result) bool {
			field := value.Get("field").String()
			v := value.Get("value").String()
			if v == "" {
				v = value.Get("values.0").String()
			}
			if field != "" {
				searchInput.Filters[field] = v
			}
			return true
		})
	}

	out, err := service.SearchIndex.Search(account, &searchInput)
	if err != nil {
		graphQLError(w, err.Error())
		return
	}

	result := graphQLSearchResult{
		Start: out.Start,
		Count: out.Count,
		Total: out.Total,
	}
	result.SearchResults = make([]struct {
		Entity graphQLEntity `json:"entity"`
	}, 0, len(out.Entities))

	for _, e := range out.Entities {
		result.SearchResults = append(result.SearchResults, struct {
			Entity graphQLEntity `json:"entity"`
		}{graphQLEntity{
			URN:  e.URN,
			Type: strings.ToUpper(e.EntityType),
			Name: e.Name,
		}})
	}

	graphQLData(w, map[string]interface{}{op: result})
}

func (s *server) graphQLUpdateDeprecation(w http.ResponseWriter, r *http.Request, service *metadata.Service, account string, req GraphQLRequest) {
	input := gjson.GetBytes(req.Variables, "input")

	urn := input.Get("urn").String()
	if urn == "" {
		graphQLError(w, "updateDeprecation input requires a urn")
		return
	}

	deprecationInput := DeprecationInput{
		Deprecated:       input.Get("deprecated").Bool(),
		Note:             input.Get("note").String(),
		DecommissionTime: input.Get("decommissionTime").Int(),
	}

	out, err := updateEntityDeprecation(r.Context(), service, account, urn, deprecationInput)
	if err != nil {
		graphQLError(w, err.Error())
		return
	}

	auditLog := service.AuditLogRepository.Log(r.Context(), account, out.EntityType)
	if deprecationInput.Deprecated {
		auditLog <- fmt.Sprintf("%s deprecated entity %s: %s", service.NewAuditID(), urn, deprecationInput.Note)
	} else {
		auditLog <- fmt.Sprintf("%s cleared deprecation on entity %s", service.NewAuditID(), urn)
	}

	graphQLData(w, map[string]interface{}{"updateDeprecation": true})
}

func (s *server) graphQLBatchUpdateDeprecation(w http.ResponseWriter, r *http.Request, service *metadata.Service, account string, req GraphQLRequest) {
	input := gjson.GetBytes(req.Variables, "input")

	var urns []string
	if resources := input.Get("resources"); resources.IsArray() {
		resources.ForEach(func(_, value gjson.Result) bool {
			if urn := value.Get("resourceUrn").String(); urn != "" {
				urns = append(urns, urn)
			}
			return true
		})
	}

	// also accept a plain list of urns
	if list := input.Get("urns"); list.IsArray() {
		list.ForEach(func(_, value gjson.Result) bool {
			urns = append(urns, value.String())
			return true
		})
	}

	if len(urns) == 0 {
		graphQLError(w, "batchUpdateDeprecation input requires resources")
		return
	}

	// validate the whole batch before applying any updates
	var missing []string
	for _, urn := range urns {
		if _, err := service.MetadataRepository.Get(r.Context(), account, urn); err != nil {
			missing = append(missing, urn)
		}
	}

	if len(missing) > 0 {
		graphQLError(w, fmt.Sprintf("entities not found: %s", strings.Join(missing, ", ")))
		return
	}

	deprecationInput := DeprecationInput{
		Deprecated:       input.Get("deprecated").Bool(),
		Note:             input.Get("note").String(),
		DecommissionTime: input.Get("decommissionTime").Int(),
	}

	for _, urn := range urns {
		out, err := updateEntityDeprecation(r.Context(), service, account, urn, deprecationInput)
		if err != nil {
			graphQLError(w, err.Error())
			return
		}

		auditLog := service.AuditLogRepository.Log(r.Context(), account, out.EntityType)
		if deprecationInput.Deprecated {
			auditLog <- fmt.Sprintf("%s deprecated entity %s: %s", service.NewAuditID(), urn, deprecationInput.Note)
		} else {
			auditLog <- fmt.Sprintf("%s cleared deprecation on entity %s", service.NewAuditID(), urn)
		}
	}

	graphQLData(w, map[string]interface{}{"batchUpdateDeprecation": true})
}

// graphQLData writes a graphql data envelope
func graphQLData(w http.ResponseWriter, data map[string]interface{}) {
	j, err := json.Marshal(struct {
		Data map[string]interface{} `json:"data"`
	}{data})
	if err != nil {
		log.Errorf("cannot marshal graphql response (%v) into JSON: %s", data, err)
		handleError(w, apierror.New(apierror.ErrInternalError, "unable to marshal response", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(j)
}

// graphQLError writes a graphql errors envelope.  Operation errors come back
// with a 200 status like a graphql server would return them.
func graphQLError(w http.ResponseWriter, msg string) {
	log.Warnf("graphql operation error: %s", msg)

	output := struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}{[]struct {
		Message string `json:"message"`
	}{{msg}}}

	j, err := json.Marshal(output)
	if err != nil {
		log.Errorf("cannot marshal graphql error response into JSON: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(j)
}
