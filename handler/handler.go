// Package handler exposes the thread and RAG use cases as a JSON HTTP API.
// The same router serves the local server and the Lambda function.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/awslabs/aws-lambda-go-api-proxy/gorillamux"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"rag-chat/internal/domain"
	"rag-chat/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerUserID        = "X-User-Id"
	anonymousUser       = "anonymous"
	maxBodyBytes        = 1 << 20
)

// ThreadUseCase is implemented by *usecase.ThreadService.
type ThreadUseCase interface {
	Create(ctx context.Context, userID, title string) (string, error)
	List(ctx context.Context, userID string, req domain.PageRequest) (domain.Page[domain.Thread], error)
	Rename(ctx context.Context, userID, threadID, title string) (string, error)
	Archive(ctx context.Context, userID, threadID string) error
}

// RAGUseCase is implemented by *usecase.RAGService.
type RAGUseCase interface {
	AddContext(ctx context.Context, userID, title, text string) error
	AskQuestion(ctx context.Context, userID, threadID, prompt string) error
	ListMessagesWithContext(ctx context.Context, userID, threadID string, req domain.PageRequest, stream bool) (domain.Page[domain.Message], error)
	ListEntries(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Entry], error)
	ListChunks(ctx context.Context, entryID string, req domain.PageRequest) (domain.Page[domain.Chunk], error)
}

// RequestObserver is implemented by *metrics.Metrics.
type RequestObserver interface {
	ObserveRequest(route string, code int, elapsed time.Duration)
}

type Handler struct {
	threads ThreadUseCase
	rag     RAGUseCase
	log     *zap.Logger
	obs     RequestObserver
	router  *mux.Router
	proxy   *gorillamux.GorillaMuxAdapter
}

type Option func(*Handler)

// WithObserver records per-route request metrics.
func WithObserver(obs RequestObserver) Option {
	return func(h *Handler) { h.obs = obs }
}

func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

func NewHandler(threads ThreadUseCase, rag RAGUseCase, opts ...Option) (*Handler, error) {
	if threads == nil {
		return nil, errors.New("handler: thread use case must not be nil")
	}
	if rag == nil {
		return nil, errors.New("handler: rag use case must not be nil")
	}
	h := &Handler{threads: threads, rag: rag, log: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.routes()
	h.proxy = gorillamux.New(h.router)
	return h, nil
}

// Router exposes the route table so callers can mount extra endpoints.
func (h *Handler) Router() *mux.Router { return h.router }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

type createThreadRequest struct {
	Title string `json:"title"`
}

type renameThreadRequest struct {
	Title string `json:"title"`
}

type threadIDResponse struct {
	ThreadID string `json:"threadId"`
}

type addContextRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type askQuestionRequest struct {
	Prompt string `json:"prompt"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) createThread(w http.ResponseWriter, r *http.Request) {
	var in createThreadRequest
	if !h.decode(w, r, &in) {
		return
	}
	id, err := h.threads.Create(r.Context(), userID(r), in.Title)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threadIDResponse{ThreadID: id})
}

func (h *Handler) listThreads(w http.ResponseWriter, r *http.Request) {
	req, ok := h.pageRequest(w, r)
	if !ok {
		return
	}
	page, err := h.threads.List(r.Context(), userID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) renameThread(w http.ResponseWriter, r *http.Request) {
	var in renameThreadRequest
	if !h.decode(w, r, &in) {
		return
	}
	id, err := h.threads.Rename(r.Context(), userID(r), mux.Vars(r)["threadId"], in.Title)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threadIDResponse{ThreadID: id})
}

func (h *Handler) archiveThread(w http.ResponseWriter, r *http.Request) {
	if err := h.threads.Archive(r.Context(), userID(r), mux.Vars(r)["threadId"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) addContext(w http.ResponseWriter, r *http.Request) {
	var in addContextRequest
	if !h.decode(w, r, &in) {
		return
	}
	if err := h.rag.AddContext(r.Context(), userID(r), in.Title, in.Text); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) askQuestion(w http.ResponseWriter, r *http.Request) {
	var in askQuestionRequest
	if !h.decode(w, r, &in) {
		return
	}
	if err := h.rag.AskQuestion(r.Context(), userID(r), mux.Vars(r)["threadId"], in.Prompt); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	req, ok := h.pageRequest(w, r)
	if !ok {
		return
	}
	stream := true
	if v := r.URL.Query().Get("stream"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "bad_stream_flag", Err: err})
			return
		}
		stream = b
	}
	page, err := h.rag.ListMessagesWithContext(r.Context(), userID(r), mux.Vars(r)["threadId"], req, stream)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	req, ok := h.pageRequest(w, r)
	if !ok {
		return
	}
	page, err := h.rag.ListEntries(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) listChunks(w http.ResponseWriter, r *http.Request) {
	req, ok := h.pageRequest(w, r)
	if !ok {
		return
	}
	page, err := h.rag.ListChunks(r.Context(), mux.Vars(r)["entryId"], req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.writeError(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: err})
		return false
	}
	return true
}

func (h *Handler) pageRequest(w http.ResponseWriter, r *http.Request) (domain.PageRequest, bool) {
	q := r.URL.Query()
	req := domain.PageRequest{Cursor: q.Get("cursor")}
	if v := q.Get("numItems"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "bad_num_items", Err: err})
			return domain.PageRequest{}, false
		}
		req.NumItems = n
	}
	return req.Normalize(), true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := mapError(err)
	log := h.log.With(
		zap.String("correlationId", w.Header().Get(headerCorrelationID)),
		zap.String("path", r.URL.Path),
		zap.String("code", body.Error),
		zap.String("reason", body.Reason),
		zap.Error(err),
	)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Info("request rejected")
	}
	writeJSON(w, status, body)
}

func mapError(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Reason: "unexpected_error"}
	}
	return ucErr.Code.HTTPStatus(), errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(headerUserID)); id != "" {
		return id
	}
	return anonymousUser
}

func correlationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(headerCorrelationID)); id != "" {
		return id
	}
	return uuid.NewString()
}
