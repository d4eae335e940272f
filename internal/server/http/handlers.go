package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/item-service/internal/database"
	"github.com/helixir/item-service/internal/domain"
	"github.com/helixir/item-service/internal/observability"
)

// maxRequestBodySize is the 1 MB limit for request bodies.
const maxRequestBodySize = 1 << 20

// Item operation names used in logs and metrics.
const (
	opCreate = "create"
	opGet    = "get"
	opList   = "list"
	opUpdate = "update"
	opDelete = "delete"
)

// itemRequest is the JSON request body for creating or replacing an item.
// Name must be present but may be empty; description may be omitted or null.
type itemRequest struct {
	Name        *string `json:"name" validate:"required"`
	Description *string `json:"description"`
}

// createItem handles POST /api/v1/items.
func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in, ok := s.decodeItemInput(w, r)
	if !ok {
		return
	}

	var item domain.Item
	err := s.sessions.WithSession(ctx, func(sess database.Session) error {
		var err error
		item, err = s.items.Create(ctx, sess, in)
		return err
	})
	if err != nil {
		s.handleError(w, r, opCreate, err)
		return
	}

	s.recordOutcome(opCreate, observability.OutcomeOK)
	writeJSON(w, http.StatusCreated, domainItemToResponse(item))
}

// listItems handles GET /api/v1/items.
func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	skip, limit, ok := s.parsePaginationParams(w, r)
	if !ok {
		return
	}

	var items []domain.Item
	err := s.sessions.WithSession(ctx, func(sess database.Session) error {
		var err error
		items, err = s.items.List(ctx, sess, skip, limit)
		return err
	})
	if err != nil {
		s.handleError(w, r, opList, err)
		return
	}

	s.recordOutcome(opList, observability.OutcomeOK)
	writeJSON(w, http.StatusOK, domainItemsToResponse(items))
}

// getItem handles GET /api/v1/items/{itemID}.
func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseItemID(w, r)
	if !ok {
		return
	}

	var item domain.Item
	err := s.sessions.WithSession(ctx, func(sess database.Session) error {
		got, found, err := s.items.Get(ctx, sess, id)
		if err != nil {
			return err
		}
		if !found {
			return domain.ItemNotFound(id)
		}
		item = got
		return nil
	})
	if err != nil {
		s.handleItemError(w, r, opGet, id, err)
		return
	}

	s.recordOutcome(opGet, observability.OutcomeOK)
	writeJSON(w, http.StatusOK, domainItemToResponse(item))
}

// updateItem handles PUT /api/v1/items/{itemID}. Both fields are replaced;
// an omitted description is stored as null.
func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseItemID(w, r)
	if !ok {
		return
	}
	in, ok := s.decodeItemInput(w, r)
	if !ok {
		return
	}

	var item domain.Item
	err := s.sessions.WithSession(ctx, func(sess database.Session) error {
		updated, found, err := s.items.Update(ctx, sess, id, in)
		if err != nil {
			return err
		}
		if !found {
			return domain.ItemNotFound(id)
		}
		item = updated
		return nil
	})
	if err != nil {
		s.handleItemError(w, r, opUpdate, id, err)
		return
	}

	s.recordOutcome(opUpdate, observability.OutcomeOK)
	writeJSON(w, http.StatusOK, domainItemToResponse(item))
}

// deleteItem handles DELETE /api/v1/items/{itemID}. The response carries the
// item as it was before removal.
func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseItemID(w, r)
	if !ok {
		return
	}

	var item domain.Item
	err := s.sessions.WithSession(ctx, func(sess database.Session) error {
		deleted, found, err := s.items.Delete(ctx, sess, id)
		if err != nil {
			return err
		}
		if !found {
			return domain.ItemNotFound(id)
		}
		item = deleted
		return nil
	})
	if err != nil {
		s.handleItemError(w, r, opDelete, id, err)
		return
	}

	s.recordOutcome(opDelete, observability.OutcomeOK)
	writeJSON(w, http.StatusOK, domainItemToResponse(item))
}

// decodeItemInput reads and validates an item payload, writing a 400 error
// response when it is unusable.
func (s *Server) decodeItemInput(w http.ResponseWriter, r *http.Request) (domain.ItemInput, bool) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return domain.ItemInput{}, false
	}
	if len(body) > maxRequestBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return domain.ItemInput{}, false
	}

	var req itemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return domain.ItemInput{}, false
	}

	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, fieldErrorMessage(verrs[0]))
			return domain.ItemInput{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return domain.ItemInput{}, false
	}

	return domain.ItemInput{Name: *req.Name, Description: req.Description}, true
}

// fieldErrorMessage renders a validator field error without echoing the
// submitted value.
func fieldErrorMessage(fe validator.FieldError) string {
	field := fe.StructField()
	if f, ok := itemRequestFields[field]; ok {
		field = f
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	default:
		return field + " is invalid"
	}
}

var itemRequestFields = map[string]string{
	"Name":        "name",
	"Description": "description",
}

// handleError logs err, records the operation outcome and writes the
// matching error response.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.reportError(w, observability.LoggerFromContext(r.Context(), s.logger), op, err)
}

// handleItemError is handleError for operations addressing a single item.
func (s *Server) handleItemError(w http.ResponseWriter, r *http.Request, op string, id int64, err error) {
	logger := observability.WithItemContext(observability.LoggerFromContext(r.Context(), s.logger), id)
	s.reportError(w, logger, op, err)
}

func (s *Server) reportError(w http.ResponseWriter, logger zerolog.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.recordOutcome(op, observability.OutcomeNotFound)
		logger.Debug().Str("operation", op).Err(err).Msg("item not found")
	case errors.Is(err, domain.ErrInvalidInput):
		s.recordOutcome(op, observability.OutcomeError)
		logger.Debug().Str("operation", op).Err(err).Msg("invalid item request")
	default:
		s.recordOutcome(op, observability.OutcomeError)
		logger.Error().Str("operation", op).Err(err).Msg("item operation failed")
	}

	writeDomainError(w, err)
}

func (s *Server) recordOutcome(op, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordItemOperation(op, outcome)
	}
}

// writeDomainError maps domain errors to appropriate HTTP status codes and
// writes a JSON error response. Internal error details are not leaked to
// clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, nf.Entity+" not found")
		} else {
			writeError(w, http.StatusNotFound, "resource not found")
		}
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrConfiguration):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseItemID parses the {itemID} path parameter, writing a 400 error
// response if it is not an integer. The raw value is not echoed back.
func parseItemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "item_id must be an integer")
		return 0, false
	}
	return id, true
}

// parsePaginationParams extracts skip and limit from the query string.
// Missing values default to 0 and the configured default limit; limit is
// capped at the configured maximum. Non-integer or negative values are
// rejected with 400.
func (s *Server) parsePaginationParams(w http.ResponseWriter, r *http.Request) (skip, limit int, ok bool) {
	query := r.URL.Query()

	skip, ok = parseNonNegative(w, query.Get("skip"), "skip", 0)
	if !ok {
		return 0, 0, false
	}
	limit, ok = parseNonNegative(w, query.Get("limit"), "limit", s.defaultLimit)
	if !ok {
		return 0, 0, false
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	return skip, limit, true
}

func parseNonNegative(w http.ResponseWriter, raw, name string, fallback int) (int, bool) {
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be an integer")
		return 0, false
	}
	if v < 0 {
		writeError(w, http.StatusBadRequest, name+" must be greater than or equal to 0")
		return 0, false
	}
	return v, true
}
