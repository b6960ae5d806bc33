package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/entityloader"
	"github.com/rpattn/obsquery/internal/export"
	"github.com/rpattn/obsquery/internal/middleware"
	"github.com/rpattn/obsquery/internal/query"
	"github.com/rpattn/obsquery/internal/schema"
	"github.com/rpattn/obsquery/internal/sequence"
)

type resultsResponse struct {
	RecordID         int64                    `json:"record_id"`
	Total            int64                    `json:"total"`
	Truncated        bool                     `json:"truncated"`
	Page             int                      `json:"page"`
	PerPage          int                      `json:"per_page"`
	IDs              []int64                  `json:"ids"`
	Records          []domain.Entity          `json:"records"`
	Errors           []domain.ValidationError `json:"errors"`
	PreferenceFilter bool                     `json:"preference_filter"`
	Letter           string                   `json:"letter,omitempty"`
	UsedLetters      []string                 `json:"used_letters,omitempty"`
}

type errorResponse struct {
	Error  string                   `json:"error"`
	Errors []domain.ValidationError `json:"errors,omitempty"`
}

// page is one materialized page of a cached ordering.
type page struct {
	spec    *query.Spec
	record  domain.QueryRecord
	total   int64
	number  int
	perPage int
	ids     []int64
	records []domain.Entity

	letter  string
	letters []string
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, resultsResponse{
		RecordID:         p.record.ID,
		Total:            p.total,
		Truncated:        p.record.Truncated,
		Page:             p.number,
		PerPage:          p.perPage,
		IDs:              p.ids,
		Records:          p.records,
		Errors:           []domain.ValidationError{},
		PreferenceFilter: p.spec.PreferenceFilter(),
		Letter:           p.letter,
		UsedLetters:      p.letters,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPage(w, r)
	if !ok {
		return
	}
	if err := export.ServeXLSX(w, p.spec.EntityType(), p.records); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("export failed")
	}
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.buildSpec(w, r)
	if !ok {
		return
	}
	plan, err := s.deps.Compiler.Compile(r.Context(), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := plan.Count(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	t, ok := s.entityType(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown model " + r.PathValue("model")})
		return
	}
	q := r.URL.Query()
	recordID, err1 := strconv.ParseInt(q.Get("record"), 10, 64)
	current, err2 := strconv.ParseInt(q.Get("id"), 10, 64)
	dir, ok := domain.ParseDirection(q.Get("dir"))
	if err1 != nil || err2 != nil || !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "record, id and dir (next, prev, first, last) are required"})
		return
	}

	res, err := s.deps.Navigator.Step(r.Context(), sequence.Step{
		EntityType: t,
		RecordID:   recordID,
		Current:    current,
		Direction:  dir,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// buildSpec parses, filters and validates the request's specification. It
// writes the error response itself and reports false on failure.
func (s *Server) buildSpec(w http.ResponseWriter, r *http.Request) (*query.Spec, bool) {
	t, ok := s.entityType(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown model " + r.PathValue("model")})
		return nil, false
	}
	spec, err := s.deps.Factory.New(t, ParseParams(r.URL.Query()))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	spec = s.deps.Factory.ApplyDefaults(spec, s.deps.Filters)

	valid, err := spec.Validate(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	if !valid {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid query", Errors: spec.Errors()})
		return nil, false
	}
	return spec, true
}

func (s *Server) loadPage(w http.ResponseWriter, r *http.Request) (*page, bool) {
	if !validLetter(r.URL.Query().Get("letter")) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "letter must be a single letter A to Z"})
		return nil, false
	}
	spec, ok := s.buildSpec(w, r)
	if !ok {
		return nil, false
	}
	ctx := r.Context()
	rec, err := s.deps.Store.GetOrCreate(ctx, spec)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}

	p := &page{spec: spec, record: rec, total: int64(len(rec.ResultIDs))}
	p.number, p.perPage = paging(r)
	q := r.URL.Query()
	if letter, need := q.Get("letter"), q.Get("need_letters"); letter != "" || isTrue(need) {
		err = s.letterPage(ctx, p, letter, isTrue(need))
	} else {
		p.ids, err = s.pageIDs(ctx, p)
	}
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}

	loader := middleware.EntityLoaderFromContext(ctx)
	if loader == nil {
		p.records, err = s.deps.Entities.GetByIDs(ctx, spec.EntityType(), p.ids)
	} else {
		p.records, err = entityloader.LoadPage(ctx, loader, spec.EntityType(), p.ids)
	}
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return p, true
}

// pageIDs slices the cached ordering. Truncated orderings go back to the
// store for the true total and for pages past the cached prefix.
func (s *Server) pageIDs(ctx context.Context, p *page) ([]int64, error) {
	ids := p.record.ResultIDs
	start := (p.number - 1) * p.perPage
	if p.record.Truncated {
		plan, err := s.deps.Compiler.Compile(ctx, p.spec)
		if err != nil {
			return nil, err
		}
		if p.total, err = plan.Count(ctx); err != nil {
			return nil, err
		}
		if start+p.perPage > len(ids) {
			return plan.Page(ctx, p.number, p.perPage)
		}
	}
	if start >= len(ids) {
		return []int64{}, nil
	}
	end := min(start+p.perPage, len(ids))
	return append([]int64(nil), ids[start:end]...), nil
}

// letterPage pages through the matches whose title starts with letter, and
// lists the letters in use when needLetters is set. An empty letter pages
// the cached ordering as usual.
func (s *Server) letterPage(ctx context.Context, p *page, letter string, needLetters bool) error {
	plan, err := s.deps.Compiler.Compile(ctx, p.spec)
	if err != nil {
		return err
	}
	if needLetters {
		if p.letters, err = plan.Letters(ctx); err != nil {
			return err
		}
	}
	if letter == "" {
		p.ids, err = s.pageIDs(ctx, p)
		return err
	}

	narrowed, err := plan.ForLetter(letter)
	if err != nil {
		return err
	}
	p.letter = strings.ToUpper(letter)
	if p.total, err = narrowed.Count(ctx); err != nil {
		return err
	}
	p.ids, err = narrowed.Page(ctx, p.number, p.perPage)
	return err
}

func isTrue(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}

func validLetter(s string) bool {
	return s == "" || (len(s) == 1 && strings.ContainsAny(strings.ToUpper(s), "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
}

func paging(r *http.Request) (int, int) {
	q := r.URL.Query()
	pageNum, err := strconv.Atoi(q.Get("page"))
	if err != nil || pageNum < 1 {
		pageNum = 1
	}
	perPage, err := strconv.Atoi(q.Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = defaultPerPage
	}
	return pageNum, min(perPage, maxPerPage)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, query.ErrUnknownEntityType):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, query.ErrInvalidSpec):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case schema.IsConfigError(err):
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("query configuration error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query configuration error"})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
