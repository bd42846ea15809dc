package httptransport

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fleetops/pkg/domain"
	dErrors "fleetops/pkg/domain-errors"
	"fleetops/pkg/platform/audit"
	"fleetops/pkg/platform/httputil"
)

// AccountParam is the URL parameter naming the account under review.
const AccountParam = "accountID"

const (
	defaultAuditPage = 50
	maxAuditPage     = 500
)

// AuditLog lists recorded audit events about an account, newest first.
type AuditLog interface {
	ListByAccount(ctx context.Context, accountID domain.AccountID, limit int) ([]audit.Event, error)
}

// AccountAuditResponse is the body of GET /admin/accounts/{accountID}/audit.
type AccountAuditResponse struct {
	AccountID string        `json:"account_id"`
	Events    []audit.Event `json:"events"`
}

func handleAccountAudit(log AuditLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := domain.ParseAccountID(chi.URLParam(r, AccountParam))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		limit := defaultAuditPage
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
				return
			}
			limit = min(n, maxAuditPage)
		}

		events, err := log.ListByAccount(r.Context(), accountID, limit)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
			return
		}
		if events == nil {
			events = []audit.Event{}
		}
		httputil.WriteJSON(w, http.StatusOK, AccountAuditResponse{
			AccountID: accountID.String(),
			Events:    events,
		})
	}
}
