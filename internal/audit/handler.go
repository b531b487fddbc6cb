package audit

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/therapy-practice-api/internal/http/apiutil"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

type Handler struct {
	service *Service
	reports *Reports
	logger  *logging.Logger
}

func NewHandler(service *Service, reports *Reports, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, reports: reports, logger: logger}
}

// Reconciliation handles GET /admin/reconciliation.
func (h *Handler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var statuses []string
	for _, s := range q["status"] {
		for _, part := range strings.Split(s, ",") {
			switch part = strings.TrimSpace(part); part {
			case "":
			case "pending", "paid", "failed", "refunded":
				statuses = append(statuses, part)
			default:
				apiutil.WriteError(w, http.StatusBadRequest, "invalid status")
				return
			}
		}
	}
	items, err := h.reports.Reconciliation(r.Context(), statuses, atoiDefault(q.Get("limit"), 100))
	if err != nil {
		h.logger.Error("reconciliation report failed", "error", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []ReconciliationItem{}
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Events handles GET /admin/audit.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{SubjectID: strings.TrimSpace(q.Get("subject_id")), Limit: atoiDefault(q.Get("limit"), 100)}
	for _, t := range q["event_type"] {
		if t = strings.TrimSpace(t); t != "" {
			f.EventTypes = append(f.EventTypes, EventType(t))
		}
	}
	events, err := h.service.QueryEvents(r.Context(), f)
	if err != nil {
		h.logger.Error("audit query failed", "error", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []Event{}
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func atoiDefault(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
