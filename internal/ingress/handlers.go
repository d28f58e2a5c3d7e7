package ingress

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/logger"
	"github.com/harunnryd/odoo-agent/internal/odoo"
	"github.com/harunnryd/odoo-agent/internal/orchestrator"
	"github.com/harunnryd/odoo-agent/internal/orchestrator/command"
	"github.com/harunnryd/odoo-agent/internal/protocol"
	"github.com/harunnryd/odoo-agent/internal/session"
)

const (
	maxBodyBytes       = 1 << 20
	defaultPageSize    = 20
	maxPageSize        = 100
	maxBatchSize       = 100
	defaultRecordLimit = 100
	maxRecordLimit     = 1000
)

type queryRequest struct {
	Message        string `json:"message"`
	SessionID      string `json:"session_id"`
	Role           string `json:"role"`
	TraceID        string `json:"trace_id"`
	IncludeHistory bool   `json:"include_history"`
}

type createSessionRequest struct {
	InitialMessage string            `json:"initial_message"`
	Role           string            `json:"role"`
	Metadata       map[string]string `json:"metadata"`
}

type createSessionResponse struct {
	Session session.Session        `json:"session"`
	Reply   *orchestrator.Response `json:"reply,omitempty"`
}

type updateSessionRequest struct {
	Status   session.Status    `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

type page struct {
	Items      interface{} `json:"items"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalItems int         `json:"total_items"`
	TotalPages int         `json:"total_pages"`
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.InvalidInput("read request body")
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.InvalidInput(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = logger.GetTraceID(r.Context())
	}
	resp := s.turns.Handle(r.Context(), orchestrator.Request{
		SessionID:      req.SessionID,
		ClientID:       logger.GetClientID(r.Context()),
		Role:           req.Role,
		Message:        req.Message,
		TraceID:        traceID,
		IncludeHistory: req.IncludeHistory,
	})

	status := http.StatusOK
	switch resp.Outcome {
	case orchestrator.OutcomeInvalidInput:
		status = http.StatusBadRequest
	case orchestrator.OutcomeRateLimited:
		if resp.RetryAfterSecs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSecs))
			status = http.StatusTooManyRequests
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	sess := s.sessions.Create("")
	for k, v := range req.Metadata {
		if err := s.sessions.SetMetadata(sess.ID, k, v); err != nil {
			writeAppError(w, r, err)
			return
		}
	}
	if req.Role != "" {
		if err := s.sessions.SetMetadata(sess.ID, command.MetadataRole, req.Role); err != nil {
			writeAppError(w, r, err)
			return
		}
	}
	slog.Info("Session created over HTTP", append(logger.Attrs(r.Context()), "session_id", sess.ID)...)

	out := createSessionResponse{}
	if req.InitialMessage != "" {
		reply := s.turns.Handle(r.Context(), orchestrator.Request{
			SessionID: sess.ID,
			ClientID:  logger.GetClientID(r.Context()),
			Role:      req.Role,
			Message:   req.InitialMessage,
			TraceID:   logger.GetTraceID(r.Context()),
		})
		out.Reply = &reply
	}

	current, err := s.sessions.Get(sess.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out.Session = current
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	pageNum, pageSize, err := pagination(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	all := s.sessions.List()
	start, end := pageBounds(pageNum, pageSize, len(all))

	writeJSON(w, http.StatusOK, page{
		Items:      all[start:end],
		Page:       pageNum,
		PageSize:   pageSize,
		TotalItems: len(all),
		TotalPages: (len(all) + pageSize - 1) / pageSize,
	})
}

// pageBounds returns the slice bounds of page pageNum. Pages past the end
// are empty; the multiplication never runs on an out-of-range page.
func pageBounds(pageNum, pageSize, total int) (int, int) {
	if pageNum-1 >= (total+pageSize-1)/pageSize {
		return total, total
	}
	start := (pageNum - 1) * pageSize
	return start, min(start+pageSize, total)
}

func pagination(r *http.Request) (int, int, error) {
	pageNum, pageSize := 1, defaultPageSize
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, apperrors.InvalidInput("page must be a positive integer")
		}
		pageNum = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return 0, 0, apperrors.InvalidInput(fmt.Sprintf("page_size must be between 1 and %d", maxPageSize))
		}
		pageSize = n
	}
	return pageNum, pageSize, nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	if req.Status != "" {
		if err := s.sessions.SetStatus(id, req.Status); err != nil {
			writeAppError(w, r, err)
			return
		}
	}
	for k, v := range req.Metadata {
		if err := s.sessions.SetMetadata(id, k, v); err != nil {
			writeAppError(w, r, err)
			return
		}
	}

	sess, err := s.sessions.Get(id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExecute validates a raw command object, gates it through the rate
// limiter and runs it against the remote store.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeAppError(w, r, apperrors.InvalidInput("read request body"))
		return
	}

	cmd, err := protocol.Validate(string(body))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	if err := s.limiter.Check(logger.GetClientID(r.Context())); err != nil {
		s.metrics.IncRateLimited("invoke")
		writeAppError(w, r, err)
		return
	}

	res := s.remote.Invoke(r.Context(), cmd)
	status := http.StatusOK
	if !res.Success {
		status = statusFor(res.Err())
	}
	writeJSON(w, status, res)
}

type batchItem struct {
	Index int `json:"index"`
	odoo.ExecutionResult
}

type batchResponse struct {
	BatchSize    int         `json:"batch_size"`
	SuccessCount int         `json:"success_count"`
	ErrorCount   int         `json:"error_count"`
	Results      []batchItem `json:"results"`
}

// handleBatch validates every command before running any of them. The
// whole batch counts as one request against the rate limit.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var raw []json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		writeAppError(w, r, err)
		return
	}
	if len(raw) == 0 {
		writeAppError(w, r, apperrors.InvalidInput("batch must contain at least one command"))
		return
	}
	if len(raw) > maxBatchSize {
		writeAppError(w, r, apperrors.InvalidInput(fmt.Sprintf("batch holds %d commands, the limit is %d", len(raw), maxBatchSize)))
		return
	}

	cmds := make([]protocol.Command, len(raw))
	for i, item := range raw {
		cmd, err := protocol.Validate(string(item))
		if err != nil {
			writeAppError(w, r, apperrors.Wrap(err, fmt.Sprintf("command %d", i)))
			return
		}
		cmds[i] = cmd
	}

	if err := s.limiter.Check(logger.GetClientID(r.Context())); err != nil {
		s.metrics.IncRateLimited("batch")
		writeAppError(w, r, err)
		return
	}

	results := s.remote.Batch(r.Context(), cmds)
	out := batchResponse{BatchSize: len(cmds), Results: make([]batchItem, len(results))}
	for i, res := range results {
		out.Results[i] = batchItem{Index: i, ExecutionResult: res}
		if res.Success {
			out.SuccessCount++
		} else {
			out.ErrorCount++
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type recordsResponse struct {
	Model      string                   `json:"model"`
	TotalCount int64                    `json:"total_count"`
	Limit      int                      `json:"limit"`
	Offset     int                      `json:"offset"`
	Records    []map[string]interface{} `json:"records"`
}

// handleRecords lists records of one model. Query parameters: domain (JSON
// array), fields (comma separated), limit, offset and order.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	model := r.PathValue("model")
	q := r.URL.Query()

	domain, err := protocol.ParseDomain(q.Get("domain"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	opts := odoo.SearchOptions{Limit: defaultRecordLimit, Order: strings.TrimSpace(q.Get("order"))}
	for _, f := range strings.Split(q.Get("fields"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			opts.Fields = append(opts.Fields, f)
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRecordLimit {
			writeAppError(w, r, apperrors.InvalidInput(fmt.Sprintf("limit must be between 1 and %d", maxRecordLimit)))
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeAppError(w, r, apperrors.InvalidInput("offset must be a non-negative integer"))
			return
		}
		opts.Offset = n
	}

	if err := s.limiter.Check(logger.GetClientID(r.Context())); err != nil {
		s.metrics.IncRateLimited("records")
		writeAppError(w, r, err)
		return
	}

	exists, err := s.remote.ModelExists(r.Context(), model)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if !exists {
		writeAppError(w, r, apperrors.NotFound(fmt.Sprintf("model %s not found", model)))
		return
	}

	total, err := s.remote.SearchCount(r.Context(), model, domain)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	records, err := s.remote.SearchRead(r.Context(), model, domain, opts)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{
		Model:      model,
		TotalCount: total,
		Limit:      opts.Limit,
		Offset:     opts.Offset,
		Records:    records,
	})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	models, err := s.remote.ListModels(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":     models,
		"count":      len(models),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleModelFields(w http.ResponseWriter, r *http.Request) {
	model := r.PathValue("model")
	fields, err := s.remote.ModelFields(r.Context(), model)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model":  model,
		"fields": fields,
	})
}
