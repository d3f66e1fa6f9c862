package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
)

const (
	// minQueryLength is the minimum length of a search query.
	minQueryLength = 3

	// maxQueryLength caps query size to keep provider requests sane.
	maxQueryLength = 500

	// defaultPaperCount is used when the request omits count.
	defaultPaperCount = 3

	// defaultSearchLimit and maxSearchLimit bound the raw search endpoint.
	defaultSearchLimit = 10
	maxSearchLimit     = 20

	// maxRequestBodySize limits request bodies to 1 MB.
	maxRequestBodySize = 1 << 20
)

// validate checks request DTOs. Client-facing messages name fields by their
// JSON tag.
var validate = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return strings.ToLower(field.Name)
		}
		return name
	})
	return v
}

// processRequest is the JSON request body for starting an enrichment batch.
type processRequest struct {
	Query     string `json:"query" validate:"required,min=3,max=500"`
	Count     int    `json:"count" validate:"omitempty,gte=1,lte=10"`
	DateRange string `json:"date_range" validate:"omitempty,oneof=week month year"`
}

// processBatch handles POST /api/process.
//
// The response carries the batch with abstracts already attached; image
// generation continues in the background and is observable through the
// batch endpoints.
func (s *Server) processBatch(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req processRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Count == 0 {
		req.Count = defaultPaperCount
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, requestErrorMessage(err))
		return
	}

	batch, err := s.pipeline.Process(r.Context(), req.Query, req.Count, domain.DateRange(req.DateRange))
	if err != nil {
		s.logger.Error().Err(err).Str("query", req.Query).Msg("process batch failed")
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchToResponse(batch))
}

// getBatch handles GET /api/batches/{batchID}.
func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := parseUUID(w, chi.URLParam(r, "batchID"), "batchID")
	if !ok {
		return
	}

	batch, ok := s.pipeline.GetLatest(batchID)
	if !ok {
		writeError(w, http.StatusNotFound, "batch not found: only the most recent batch is retained")
		return
	}

	writeJSON(w, http.StatusOK, batchToResponse(batch))
}

// searchPapers handles GET /api/search. It returns raw candidates without
// abstracts or images.
func (s *Server) searchPapers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if len(query) < minQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("query must be at least %d characters", minQueryLength))
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("query must be at most %d characters", maxQueryLength))
		return
	}

	limit := parseLimitParam(r, defaultSearchLimit, maxSearchLimit)

	dateRange := domain.DateRange(r.URL.Query().Get("date_range"))
	if !dateRange.IsValid() {
		writeError(w, http.StatusBadRequest, "date_range must be one of: week, month, year")
		return
	}

	candidates, err := s.pipeline.Search(r.Context(), query, limit, dateRange)
	if err != nil {
		s.logger.Error().Err(err).Str("query", query).Msg("search failed")
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchToResponse(query, candidates))
}

// parseLimitParam extracts the limit query parameter, clamping it to
// [1, max]. Absent or unparsable values fall back to the default.
func parseLimitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// parseUUID parses a UUID string, writing a 400 response on failure.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// writePipelineError maps domain errors to HTTP status codes.
func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSearchUnavailable):
		writeError(w, http.StatusBadGateway, "search provider unavailable")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited, retry later")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// requestErrorMessage renders the first validation failure as a client-facing
// message, e.g. "query must be at least 3 characters".
func requestErrorMessage(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return "invalid request"
	}

	fe := fieldErrors[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
