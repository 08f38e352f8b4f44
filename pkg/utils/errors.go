package utils

import (
	"context"
	"errors"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrBanned           = errors.New("ban marker detected in response") // Fatal: aborts the entire run
	ErrFetchTimeout     = errors.New("fetch exceeded configured timeout")
	ErrNoData           = errors.New("no extractable data on page") // Terminal per entry, never retried
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")      // Any non-2xx; treated as fatal
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrLedger           = errors.New("status ledger error")   // Wraps os/json errors from the ledger
	ErrBatch            = errors.New("run batch error")       // Wraps os/json errors from batch files
	ErrConsolidate      = errors.New("consolidation error")   // Wraps errors from the merge pass
	ErrPageCache        = errors.New("page cache error")      // Wraps badger errors
	ErrConfigValidation = errors.New("configuration validation error")
)

// CategorizeError maps an error to a stable category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrBanned):
		return "Fatal_Banned"
	case errors.Is(err, ErrFetchTimeout):
		return "Fetch_Timeout"
	case errors.Is(err, ErrNoData):
		return "Extract_NoData"
	case errors.Is(err, ErrUnexpectedStatus):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 429") {
			return "HTTP_429"
		}
		return "HTTP_Other"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrLedger):
		return "Ledger_Other"
	case errors.Is(err, ErrBatch):
		return "Batch_Other"
	case errors.Is(err, ErrConsolidate):
		return "Consolidate_Other"
	case errors.Is(err, ErrPageCache):
		return "PageCache_Other"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	if strings.Contains(lowerErrMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerErrMsg, "no such host") {
		return "Network_DNSLookup"
	}
	if strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate") {
		return "Network_TLS"
	}

	return "Unknown"
}
