package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"sodaledger/backend/internal/domain"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	actor, err := a.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	resp, err := a.auth.Issue(actor)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless CSRF token valid for the current hour bucket.
// Clients must include this token in the X-CSRF-Token header for all mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	session, _ := sessionFromContext(r.Context())
	if err := a.auth.Revoke(r.Context(), session); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.PasswordChangeRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	if err := a.service.ChangePassword(r.Context(), actorOf(r), req.CurrentPassword, req.NewPassword); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	overview, err := a.service.StockOverview(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (a *API) handleFlavors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		flavors, err := a.service.ListFlavors(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"flavors": flavors})
	case http.MethodPost:
		var req domain.FlavorCreateRequest
		if !a.decodeAndValidate(w, r, &req) {
			return
		}

		res, err := a.service.AddFlavor(r.Context(), actorOf(r), req.Name)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		status := http.StatusCreated
		if res.Reactivated {
			status = http.StatusOK
		}
		writeJSON(w, status, res)
	default:
		writeMethodNotAllowed(w)
	}
}

// handleFlavorActions serves /api/v1/flavors/{id}, /{id}/restock and
// /{id}/deduct.
func (a *API) handleFlavorActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/flavors/"), "/")
	parts := strings.Split(tail, "/")
	if tail == "" || len(parts) > 2 {
		writeError(w, http.StatusNotFound, errors.New("unknown flavor action"))
		return
	}

	id, err := parseID(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w)
			return
		}
		if err := a.service.DeleteFlavor(r.Context(), actorOf(r), id); err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.RestockRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	var stock domain.FlavorStock
	switch parts[1] {
	case "restock":
		stock, err = a.service.Restock(r.Context(), actorOf(r), id, req.Quantity)
	case "deduct":
		stock, err = a.service.Deduct(r.Context(), actorOf(r), id, req.Quantity)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown flavor action"))
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flavor": stock})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), defaultPageLimit, maxPageLimit)
		history, err := a.service.SalesHistory(r.Context(), limit)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": history})
	case http.MethodPost:
		var req domain.SaleRequest
		if !a.decodeAndValidate(w, r, &req) {
			return
		}

		sale, err := a.service.RecordSale(r.Context(), actorOf(r), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		customers, err := a.service.ListCustomers(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
	case http.MethodPost:
		var req domain.CustomerInput
		if !a.decodeAndValidate(w, r, &req) {
			return
		}

		res, err := a.service.AddOrReactivateCustomer(r.Context(), actorOf(r), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		status := http.StatusCreated
		if res.Reactivated {
			status = http.StatusOK
		}
		writeJSON(w, status, res)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomerActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/customers/"), "/")
	if tail == "" || strings.Contains(tail, "/") {
		writeError(w, http.StatusNotFound, errors.New("unknown customer action"))
		return
	}

	id, err := parseID(tail)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req domain.CustomerUpdate
		if !a.decodeAndValidate(w, r, &req) {
			return
		}

		customer, err := a.service.UpdateCustomer(r.Context(), actorOf(r), id, req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
	case http.MethodDelete:
		if actorOf(r).Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}
		if err := a.service.DeleteCustomer(r.Context(), actorOf(r), id); err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleReturns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), defaultPageLimit, maxPageLimit)
		returns, err := a.service.ListReturns(r.Context(), limit)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"returns": returns})
	case http.MethodPost:
		var req domain.ReturnInput
		if !a.decodeAndValidate(w, r, &req) {
			return
		}

		ret, err := a.service.RecordReturn(r.Context(), actorOf(r), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"return": ret})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := a.service.ListUsers(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req domain.UserCreateRequest
		if !a.decodeAndValidate(w, r, &req) {
			return
		}

		user, err := a.service.CreateUser(r.Context(), actorOf(r), req.Username, req.Password, req.Role)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleActivityLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), defaultPageLimit, maxPageLimit)
	logs, err := a.service.ListActivity(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
