package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/getmoxy/moxy/pkg/config"
	"github.com/getmoxy/moxy/pkg/httputil"
	"github.com/getmoxy/moxy/pkg/metrics"
	"github.com/getmoxy/moxy/pkg/requestlog"
	"github.com/getmoxy/moxy/pkg/rule"
	"github.com/getmoxy/moxy/pkg/websocket"
)

// defaultHistoryLimit is how many entries a history request returns when the
// caller does not ask for a specific count.
const defaultHistoryLimit = 50

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime,omitempty"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status  string           `json:"status"`
	Version string           `json:"version"`
	Uptime  string           `json:"uptime"`
	Clients int              `json:"clients"`
	Rules   int              `json:"rules"`
	History int              `json:"history"`
	Events  *websocket.Stats `json:"events,omitempty"`
}

// ClientSummary is one client in the GET /api/clients listing.
type ClientSummary struct {
	ClientID  string `json:"clientId"`
	RuleCount int    `json:"ruleCount"`
}

// ListClientsResponse is the body of GET /api/clients.
type ListClientsResponse struct {
	Clients []ClientSummary `json:"clients"`
	Count   int             `json:"count"`
}

// RulesResponse is the body of GET /api/clients/{clientId}/rules.
type RulesResponse struct {
	Client string    `json:"client"`
	Rules  rule.List `json:"rules"`
	Count  int       `json:"count"`
}

// RulesUpdatedResponse is the body of PUT /api/clients/{clientId}/rules.
type RulesUpdatedResponse struct {
	Client string `json:"client"`
	Count  int    `json:"count"`
}

// RulesDeletedResponse is the body of DELETE /api/clients/{clientId}/rules.
type RulesDeletedResponse struct {
	Client  string `json:"client"`
	Deleted bool   `json:"deleted"`
}

// HistoryResponse is the body of GET /api/clients/{clientId}/history.
type HistoryResponse struct {
	Client  string              `json:"client"`
	Entries []*requestlog.Entry `json:"entries"`
	Count   int                 `json:"count"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, HealthResponse{
		Status: "ok",
		Uptime: a.Uptime(),
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	version := a.version
	if version == "" {
		version = "dev"
	}

	resp := StatusResponse{
		Status:  "running",
		Version: version,
		Uptime:  a.Uptime(),
		Clients: len(a.store.ClientIDs()),
		Rules:   a.store.Count(),
	}
	if a.history != nil {
		resp.History = a.history.Len()
	}
	if a.manager != nil {
		resp.Events = a.manager.StatsSnapshot()
	}
	httputil.WriteOK(w, resp)
}

func (a *API) handleListClients(w http.ResponseWriter, r *http.Request) {
	ids := a.store.ClientIDs()
	clients := make([]ClientSummary, 0, len(ids))
	for _, id := range ids {
		clients = append(clients, ClientSummary{
			ClientID:  id,
			RuleCount: len(a.store.Get(id)),
		})
	}
	httputil.WriteOK(w, ListClientsResponse{
		Clients: clients,
		Count:   len(clients),
	})
}

func (a *API) handleGetRules(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")
	rules := a.store.Get(clientID)
	if rules == nil {
		rules = rule.List{}
	}
	httputil.WriteOK(w, RulesResponse{
		Client: clientID,
		Rules:  rules,
		Count:  len(rules),
	})
}

// handlePutRules replaces a client's rule list wholesale. The payload is
// checked against the JSON Schema first, then each rule is validated
// semantically; any failure rejects the whole list and the store keeps the
// previous rules.
func (a *API) handlePutRules(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")

	var raw json.RawMessage
	if err := httputil.DecodeJSON(r, maxRuleBodyBytes, &raw); err != nil {
		httputil.WriteBadRequest(w, "invalid_json", err.Error())
		return
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		httputil.WriteBadRequest(w, "invalid_json", err.Error())
		return
	}
	if issues := config.ValidateRuleList(generic); len(issues) > 0 {
		httputil.WriteErrorWithDetails(w, http.StatusBadRequest,
			"invalid_rules", "rule list failed schema validation", issues)
		return
	}

	var list rule.List
	if err := json.Unmarshal(raw, &list); err != nil {
		httputil.WriteBadRequest(w, "invalid_rules", err.Error())
		return
	}
	if errs := list.Validate(); len(errs) > 0 {
		details := make([]string, len(errs))
		for i, err := range errs {
			details[i] = err.Error()
		}
		httputil.WriteErrorWithDetails(w, http.StatusBadRequest,
			"invalid_rules", "rule list failed validation", details)
		return
	}

	for i := range list {
		if list[i].ID == "" {
			list[i].ID = uuid.NewString()
		}
	}

	a.store.Put(clientID, list)
	a.setActiveRules(clientID, len(list))
	a.log.Info("rules replaced", "client", clientID, "count", len(list))

	httputil.WriteOK(w, RulesUpdatedResponse{
		Client: clientID,
		Count:  len(list),
	})
}

func (a *API) handleDeleteRules(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")
	deleted := a.store.Delete(clientID)
	a.setActiveRules(clientID, 0)
	if deleted {
		a.log.Info("rules cleared", "client", clientID)
	}
	httputil.WriteOK(w, RulesDeletedResponse{
		Client:  clientID,
		Deleted: deleted,
	})
}

func (a *API) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteBadRequest(w, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var entries []*requestlog.Entry
	if a.history != nil {
		entries = a.history.Recent(clientID, limit)
	}
	if entries == nil {
		entries = []*requestlog.Entry{}
	}
	httputil.WriteOK(w, HistoryResponse{
		Client:  clientID,
		Entries: entries,
		Count:   len(entries),
	})
}

func (a *API) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")
	if a.history != nil {
		a.history.Clear(clientID)
	}
	httputil.WriteNoContent(w)
}

// setActiveRules updates the per-client rule gauge.
func (a *API) setActiveRules(clientID string, count int) {
	if metrics.ActiveRules == nil {
		return
	}
	if vec, err := metrics.ActiveRules.WithLabels(clientID); err == nil {
		vec.Set(float64(count))
	}
}
