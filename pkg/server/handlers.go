package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/dispatch"
	"github.com/entrhq/browserd/pkg/logging"
	"github.com/entrhq/browserd/pkg/tools"
)

const maxBodySize = 10 * 1024 * 1024

type handlers struct {
	dispatcher *dispatch.Dispatcher
	registry   *session.Registry
	logger     *logging.Logger
}

// health handles GET /healthz
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		ActiveSessions: h.registry.Count(),
		Tools:          len(h.dispatcher.List()),
	})
}

// listTools handles GET /tools
func (h *handlers) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ToolsResponse{Tools: h.dispatcher.List()})
}

// listSessions handles GET /sessions
func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.List()
	writeJSON(w, http.StatusOK, SessionsResponse{Count: len(sessions), Sessions: sessions})
}

// callTool handles POST /tools/{name}. The body is either a JSON object of
// arguments or an XML <arguments> block; an empty body means no arguments.
func (h *handlers) callTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.dispatcher.Get(name); !ok {
		writeError(w, http.StatusNotFound, ErrCodeUnknownTool, fmt.Sprintf("unknown tool: %s", name))
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	argsXML, err := argumentsFromBody(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	res, err := h.dispatcher.Call(r.Context(), name, argsXML)
	h.writeResult(w, res, err)
}

// callXML handles POST /call with a complete <tool> call as the body.
func (h *handlers) callXML(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if !tools.HasToolCall(string(body)) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "body does not contain a <tool> call")
		return
	}

	res, err := h.dispatcher.CallXML(r.Context(), string(body))
	if err != nil && !errors.Is(err, dispatch.ErrUnknownTool) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	h.writeResult(w, res, err)
}

func (h *handlers) writeResult(w http.ResponseWriter, res dispatch.Result, err error) {
	switch {
	case errors.Is(err, dispatch.ErrUnknownTool):
		writeError(w, http.StatusNotFound, ErrCodeUnknownTool, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	case res.Failed():
		writeJSON(w, http.StatusUnprocessableEntity, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return bytes.TrimSpace(data), nil
}

// argumentsFromBody converts a request body into an <arguments> block.
func argumentsFromBody(contentType string, body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	isJSON := mediaType == "application/json" || (mediaType == "" && body[0] == '{')
	if !isJSON {
		if !bytes.HasPrefix(body, []byte("<arguments")) {
			body = append(append([]byte("<arguments>"), body...), "</arguments>"...)
		}
		return body, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal(body, &args); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	return tools.ArgumentsXML(args)
}
