package handlers

import (
	stderrors "errors"
	"net/http"

	"reporting-gateway/internal/access"
	"reporting-gateway/internal/auth"
	"reporting-gateway/internal/models"
	"reporting-gateway/internal/reporting"
	"reporting-gateway/pkg/errors"

	"go.uber.org/zap"
)

// GatewayHandler narrows report requests to the caller's grants and forwards
// them to the reporting API.
type GatewayHandler struct {
	resolver        *access.Resolver
	client          reporting.Client
	defaultCurrency string
	logger          *zap.Logger
}

// NewGatewayHandler creates a new gateway handler
func NewGatewayHandler(resolver *access.Resolver, client reporting.Client, defaultCurrency string, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{
		resolver:        resolver,
		client:          client,
		defaultCurrency: defaultCurrency,
		logger:          logger,
	}
}

// HandleDailyActions handles POST /api/gateway/daily-actions
func (h *GatewayHandler) HandleDailyActions(w http.ResponseWriter, r *http.Request) {
	var req models.DailyActionsRequest
	if !h.decodeDateRange(w, r, &req, &req.DateRangeRequest) {
		return
	}
	if !h.authorize(w, r, &req.ReportFilter) {
		return
	}
	if req.TargetCurrency == "" {
		req.TargetCurrency = h.defaultCurrency
	}
	h.forward(w, r, reporting.EndpointDailyActions, &req)
}

// HandleTransactions handles POST /api/gateway/transactions
func (h *GatewayHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	var req models.TransactionsRequest
	if !h.decodeDateRange(w, r, &req, &req.DateRangeRequest) {
		return
	}
	if !h.authorize(w, r, &req.ReportFilter) {
		return
	}
	h.forward(w, r, reporting.EndpointTransactions, &req)
}

// HandlePlayerGames handles POST /api/gateway/player-games
func (h *GatewayHandler) HandlePlayerGames(w http.ResponseWriter, r *http.Request) {
	var req models.PlayerGamesRequest
	if !h.decodeDateRange(w, r, &req, &req.DateRangeRequest) {
		return
	}
	if !h.authorize(w, r, &req.ReportFilter) {
		return
	}
	h.forward(w, r, reporting.EndpointPlayerGames, &req)
}

// HandlePlayerSummary handles POST /api/gateway/player-summary
func (h *GatewayHandler) HandlePlayerSummary(w http.ResponseWriter, r *http.Request) {
	var req models.PlayerSummaryRequest
	if !h.decodeDateRange(w, r, &req, &req.DateRangeRequest) {
		return
	}
	if !h.authorize(w, r, &req.ReportFilter) {
		return
	}
	if req.TargetCurrency == "" {
		req.TargetCurrency = h.defaultCurrency
	}
	h.forward(w, r, reporting.EndpointPlayerSummary, &req)
}

// HandlePlayerDetails handles POST /api/gateway/player-details
func (h *GatewayHandler) HandlePlayerDetails(w http.ResponseWriter, r *http.Request) {
	var req models.PlayerDetailsRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, errors.Wrap(err, errors.ErrInvalidRequest))
		return
	}

	hasRegistration, err := validateOptionalRange("RegistrationDateStart", req.RegistrationDateStart, "RegistrationDateEnd", req.RegistrationDateEnd)
	if err != nil {
		sendError(w, errors.WithMessage(errors.ErrInvalidRequest, err.Error()))
		return
	}
	hasLastUpdated, err := validateOptionalRange("LastUpdatedDateStart", req.LastUpdatedDateStart, "LastUpdatedDateEnd", req.LastUpdatedDateEnd)
	if err != nil {
		sendError(w, errors.WithMessage(errors.ErrInvalidRequest, err.Error()))
		return
	}
	if !hasRegistration && !hasLastUpdated {
		sendError(w, errors.WithMessage(errors.ErrInvalidRequest,
			"at least one date filter (registration date or last updated date) must be provided"))
		return
	}

	if !h.authorize(w, r, &req.ReportFilter) {
		return
	}
	h.forward(w, r, reporting.EndpointPlayerDetails, &req)
}

// HandleIncomeAccess handles POST /api/gateway/income-access. Income access
// data has no affiliate dimension, so only white labels are checked.
func (h *GatewayHandler) HandleIncomeAccess(w http.ResponseWriter, r *http.Request) {
	var req models.IncomeAccessRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, errors.Wrap(err, errors.ErrInvalidRequest))
		return
	}
	days, err := validateDateRange("StartDate", req.StartDate, "EndDate", req.EndDate)
	if err != nil {
		sendError(w, errors.WithMessage(errors.ErrInvalidRequest, err.Error()))
		return
	}
	h.warnLongRange(r, days)

	filter := models.ReportFilter{WhiteLabels: req.WhiteLabels}
	if !h.authorize(w, r, &filter) {
		return
	}
	req.WhiteLabels = filter.WhiteLabels
	if req.TargetCurrency == "" {
		req.TargetCurrency = h.defaultCurrency
	}
	h.forward(w, r, reporting.EndpointIncomeAccess, &req)
}

func (h *GatewayHandler) decodeDateRange(w http.ResponseWriter, r *http.Request, dst interface{}, dr *models.DateRangeRequest) bool {
	if err := decodeJSON(r, dst); err != nil {
		sendError(w, errors.Wrap(err, errors.ErrInvalidRequest))
		return false
	}
	days, err := validateDateRange("DateStart", dr.DateStart, "DateEnd", dr.DateEnd)
	if err != nil {
		sendError(w, errors.WithMessage(errors.ErrInvalidRequest, err.Error()))
		return false
	}
	h.warnLongRange(r, days)
	return true
}

func (h *GatewayHandler) warnLongRange(r *http.Request, days int) {
	if days > longRangeDays {
		h.logger.Warn("Report date range exceeds 31 days",
			zap.String("path", r.URL.Path),
			zap.Int("days", days))
	}
}

const msgWhiteLabelsRequired = "At least one white label ID must be provided."

// authorize rejects a request naming no white labels, replaces
// filter.WhiteLabels with the permitted subset and checks the affiliate filter. It writes the error response and returns false when
// the request must not proceed.
func (h *GatewayHandler) authorize(w http.ResponseWriter, r *http.Request, filter *models.ReportFilter) bool {
	if len(filter.WhiteLabels) == 0 {
		sendError(w, errors.WithMessage(errors.ErrInvalidRequest, msgWhiteLabelsRequired))
		return false
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, errors.ErrInvalidToken)
		return false
	}

	perms, err := h.resolver.Resolve(r.Context(), principal)
	if err != nil {
		h.logger.Error("Failed to resolve permissions", zap.Int64("user_id", principal.ID), zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return false
	}

	allowed := perms.FilterWhiteLabels(filter.WhiteLabels)
	if len(allowed) == 0 {
		h.logger.Warn("No access to any requested white label",
			zap.Int64("user_id", principal.ID),
			zap.Ints("requested", filter.WhiteLabels))
		sendError(w, errors.ErrForbiddenWhiteLabel)
		return false
	}
	filter.WhiteLabels = allowed

	if filter.AffiliateID != "" && !perms.HasAffiliateAccessAny(allowed, filter.AffiliateID) {
		h.logger.Warn("No access to requested affiliate",
			zap.Int64("user_id", principal.ID),
			zap.String("affiliate_id", filter.AffiliateID))
		sendError(w, errors.ErrForbiddenAffiliate)
		return false
	}
	return true
}

func (h *GatewayHandler) forward(w http.ResponseWriter, r *http.Request, endpoint string, payload interface{}) {
	data, err := h.client.Fetch(r.Context(), endpoint, payload)
	if err != nil {
		if stderrors.Is(err, reporting.ErrUpstream) {
			h.logger.Error("Upstream report call failed", zap.String("endpoint", endpoint), zap.Error(err))
			sendError(w, errors.Wrap(err, errors.ErrUpstream))
			return
		}
		h.logger.Error("Report call failed", zap.String("endpoint", endpoint), zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
