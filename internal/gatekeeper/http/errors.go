package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	msgUnexpected = "An unexpected error occurred"
	msgBadJSON    = "The request body is not valid JSON."
)

// defaultPageSize applies when maxResultCount is absent.
const defaultPageSize = 10

func statusFor(k domain.Kind) int {
	switch k {
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to {"detail": ...}. Anything that is not a domain
// error is logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, httpx.ErrBadJSON) {
		httpx.WriteProblem(w, http.StatusBadRequest, msgBadJSON)
		return
	}

	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindInternal {
		httpx.WriteProblem(w, statusFor(de.Kind), de.Detail)
		return
	}

	slogx.FromContext(r.Context()).Error("request failed", slogx.Err(err))
	httpx.WriteProblem(w, http.StatusInternalServerError, msgUnexpected)
}

// writeOK answers 200 with an empty body.
func writeOK(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
}

// listRequest reads skipCount, maxResultCount and filters.
func listRequest(r *http.Request) (service.ListRequest, error) {
	q := r.URL.Query()
	req := service.ListRequest{
		Filter:         q.Get("filters"),
		MaxResultCount: defaultPageSize,
	}

	var err error
	if req.SkipCount, err = queryInt(q.Get("skipCount"), "skipCount", 0); err != nil {
		return req, err
	}
	if req.MaxResultCount, err = queryInt(q.Get("maxResultCount"), "maxResultCount", defaultPageSize); err != nil {
		return req, err
	}
	return req, nil
}

func queryInt(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.BadRequest("The value '%s' is not valid for %s.", raw, name)
	}
	return n, nil
}
