package models

// ReportFilter is the resource scope shared by gateway report requests.
type ReportFilter struct {
	WhiteLabels []int  `json:"WhiteLabels"`
	AffiliateID string `json:"AffiliateId,omitempty"`
}

// DateRangeRequest is a report request bounded by DateStart/DateEnd.
type DateRangeRequest struct {
	ReportFilter
	DateStart string `json:"DateStart"`
	DateEnd   string `json:"DateEnd"`
}

// DailyActionsRequest queries per-day player activity
type DailyActionsRequest struct {
	DateRangeRequest
	TargetCurrency string `json:"TargetCurrency,omitempty"`
}

// TransactionsRequest queries player transactions
type TransactionsRequest struct {
	DateRangeRequest
}

// PlayerGamesRequest queries games played
type PlayerGamesRequest struct {
	DateRangeRequest
}

// PlayerSummaryRequest queries summarized player financials
type PlayerSummaryRequest struct {
	DateRangeRequest
	TargetCurrency string `json:"TargetCurrency,omitempty"`
}

// PlayerDetailsRequest queries player records by registration or update window.
type PlayerDetailsRequest struct {
	ReportFilter
	RegistrationDateStart *string `json:"RegistrationDateStart,omitempty"`
	RegistrationDateEnd   *string `json:"RegistrationDateEnd,omitempty"`
	LastUpdatedDateStart  *string `json:"LastUpdatedDateStart,omitempty"`
	LastUpdatedDateEnd    *string `json:"LastUpdatedDateEnd,omitempty"`
}

// IncomeAccessRequest queries affiliate income data. It has no affiliate filter.
type IncomeAccessRequest struct {
	WhiteLabels    []int  `json:"WhiteLabels"`
	StartDate      string `json:"StartDate"`
	EndDate        string `json:"EndDate"`
	TargetCurrency string `json:"TargetCurrency,omitempty"`
}
