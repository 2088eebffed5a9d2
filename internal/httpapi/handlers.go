package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ultracontext/internal/compress"
	"github.com/fyrsmithlabs/ultracontext/internal/expand"
	"github.com/fyrsmithlabs/ultracontext/internal/store"
	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version,omitempty"`
	Totals  store.Totals `json:"totals"`
}

// CreateContextRequest is the body of POST /v1/contexts.
type CreateContextRequest struct {
	Metadata map[string]string    `json:"metadata,omitempty"`
	Messages []transcript.Message `json:"messages"`
}

// ListContextsResponse is the body of GET /v1/contexts.
type ListContextsResponse struct {
	Contexts []store.Context `json:"contexts"`
}

// AppendRequest is the body of POST /v1/contexts/:id/messages.
type AppendRequest struct {
	Messages []transcript.Message `json:"messages"`
}

// CompressRequest carries engine options. Nil fields keep the daemon
// defaults.
type CompressRequest struct {
	Preserve         []string `json:"preserve,omitempty"`
	RecencyWindow    *int     `json:"recency_window,omitempty"`
	Dedup            *bool    `json:"dedup,omitempty"`
	MinRecencyWindow int      `json:"min_recency_window,omitempty"`
	TokenBudget      *int     `json:"token_budget,omitempty"`
	ForceConverge    bool     `json:"force_converge,omitempty"`
	EmbedSummaryID   bool     `json:"embed_summary_id,omitempty"`
	// Summarize asks for LLM-backed summaries when the daemon has a
	// summarizer configured.
	Summarize bool `json:"summarize,omitempty"`
}

func (r CompressRequest) options(base compress.Options) compress.Options {
	o := base
	if len(r.Preserve) > 0 {
		o.Preserve = make(map[string]bool, len(r.Preserve))
		for _, role := range r.Preserve {
			o.Preserve[role] = true
		}
	}
	if r.RecencyWindow != nil {
		o.RecencyWindow = r.RecencyWindow
	}
	if r.Dedup != nil {
		o.Dedup = r.Dedup
	}
	if r.MinRecencyWindow > 0 {
		o.MinRecencyWindow = r.MinRecencyWindow
	}
	if r.TokenBudget != nil {
		o.TokenBudget = r.TokenBudget
	}
	if r.ForceConverge {
		o.ForceConverge = true
	}
	if r.EmbedSummaryID {
		o.EmbedSummaryID = true
	}
	return o
}

// StatelessCompressRequest is the body of POST /v1/compress.
type StatelessCompressRequest struct {
	Messages []transcript.Message `json:"messages"`
	CompressRequest
}

// CompressContextResponse is the body of POST /v1/contexts/:id/compress.
type CompressContextResponse struct {
	Snapshot   *store.Snapshot `json:"snapshot"`
	Stats      compress.Stats  `json:"stats"`
	Fits       *bool           `json:"fits,omitempty"`
	TokenCount *int            `json:"token_count,omitempty"`
}

// ExpandRequest is the body of POST /v1/contexts/:id/expand.
type ExpandRequest struct {
	Version   int  `json:"version,omitempty"`
	Recursive bool `json:"recursive,omitempty"`
}

// SearchResponse is the body of GET /v1/contexts/:id/search.
type SearchResponse struct {
	Matches []expand.Match `json:"matches"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Totals:  s.store.Totals(c.Request().Context()),
	})
}

func (s *Server) handleCreateContext(c echo.Context) error {
	var req CreateContextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	snap, err := s.store.Create(c.Request().Context(), req.Metadata, req.Messages)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, snap)
}

func (s *Server) handleListContexts(c echo.Context) error {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return err
	}
	offset, err := intQuery(c, "offset")
	if err != nil {
		return err
	}

	contexts, err := s.store.List(c.Request().Context(), limit, offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ListContextsResponse{Contexts: contexts})
}

func (s *Server) handleGetContext(c echo.Context) error {
	version, err := intQuery(c, "version")
	if err != nil {
		return err
	}

	snap, err := s.store.Get(c.Request().Context(), c.Param("id"), version)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleAppendMessages(c echo.Context) error {
	var req AppendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	snap, err := s.store.Append(c.Request().Context(), c.Param("id"), req.Messages)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleUpdateMessage(c echo.Context) error {
	var patch store.MessagePatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	snap, err := s.store.Update(c.Request().Context(), c.Param("id"), c.Param("mid"), patch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

// handleDeleteContext removes a context, or only the messages named by
// the comma-separated "messages" query parameter.
func (s *Server) handleDeleteContext(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if raw := c.QueryParam("messages"); raw != "" {
		snap, err := s.store.DeleteMessages(ctx, id, strings.Split(raw, ","))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, snap)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleCompressContext(c echo.Context) error {
	var req CompressRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	opts := req.options(s.defaults)
	if req.Summarize {
		if s.summarizer == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no summarizer configured")
		}
		opts.Summarizer = s.summarizer
	}

	snap, res, err := s.store.Compress(c.Request().Context(), c.Param("id"), opts)
	if err != nil {
		return httpError(err)
	}

	s.logger.DebugContext(c.Request().Context(), "compressed context",
		zap.String("context_id", c.Param("id")),
		zap.Int("version", snap.Version.Version),
		zap.Float64("ratio", res.Compression.Ratio),
	)
	return c.JSON(http.StatusOK, CompressContextResponse{
		Snapshot:   snap,
		Stats:      res.Compression,
		Fits:       res.Fits,
		TokenCount: res.TokenCount,
	})
}

func (s *Server) handleCompressStateless(c echo.Context) error {
	var req StatelessCompressRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := transcript.ValidateMessages(req.Messages); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	opts := req.options(s.defaults)
	if req.Summarize {
		if s.summarizer == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no summarizer configured")
		}
		opts.Summarizer = s.summarizer
	}

	res, err := s.engine.CompressAsync(c.Request().Context(), req.Messages, &opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleExpandContext(c echo.Context) error {
	var req ExpandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.store.Expand(c.Request().Context(), c.Param("id"), req.Version, req.Recursive)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleSearchContext(c echo.Context) error {
	pattern := c.QueryParam("q")
	if pattern == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q parameter is required")
	}
	if c.QueryParam("regex") == "true" && !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern + "/"
	}

	matches, err := s.store.Search(c.Request().Context(), c.Param("id"), pattern)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httpError(err)
		}
		// Anything else is a pattern problem, e.g. a bad regex.
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if matches == nil {
		matches = []expand.Match{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Matches: matches})
}

func intQuery(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be an integer")
	}
	return v, nil
}
