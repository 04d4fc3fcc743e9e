package rpc

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/httputil"
	"github.com/brandloom/storefront/internal/logging"
)

// MaxBatch bounds the number of calls in one batch request.
const MaxBatch = 20

// Envelope is the response body of a single call.
type Envelope struct {
	Result any                    `json:"result,omitempty"`
	Error  *httputil.ErrorPayload `json:"error,omitempty"`
}

// BatchCall is one element of a batch request.
type BatchCall struct {
	Procedure string          `json:"procedure"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// Mount registers the HTTP transport on r under prefix, e.g. "/rpc".
//
//	GET  {prefix}/{name}?input=<json>   queries only
//	POST {prefix}/{name}                 any procedure, body is the input
//	POST {prefix}?batch=1                []BatchCall, results in order
func (rt *Router) Mount(r *mux.Router, prefix string) {
	r.HandleFunc(prefix, rt.serveBatch).Methods(http.MethodPost).Queries("batch", "1")
	r.HandleFunc(prefix+"/{name}", rt.serveGet).Methods(http.MethodGet)
	r.HandleFunc(prefix+"/{name}", rt.servePost).Methods(http.MethodPost)
}

func (rt *Router) serveGet(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	p, ok := rt.Lookup(name)
	if ok && p.Kind == KindMutation {
		rt.writeError(w, req, errors.MethodNotAllowed(req.Method).WithDetails("procedure", name))
		return
	}
	rt.respond(w, req, name, json.RawMessage(req.URL.Query().Get("input")))
}

func (rt *Router) servePost(w http.ResponseWriter, req *http.Request) {
	body, err := readBody(req)
	if err != nil {
		rt.writeError(w, req, err)
		return
	}
	rt.respond(w, req, mux.Vars(req)["name"], body)
}

func (rt *Router) respond(w http.ResponseWriter, req *http.Request, name string, input json.RawMessage) {
	result, err := rt.Call(req.Context(), name, input)
	if err != nil {
		rt.writeError(w, req, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, Envelope{Result: result})
}

func (rt *Router) serveBatch(w http.ResponseWriter, req *http.Request) {
	body, err := readBody(req)
	if err != nil {
		rt.writeError(w, req, err)
		return
	}
	var calls []BatchCall
	if err := json.Unmarshal(body, &calls); err != nil {
		rt.writeError(w, req, errors.InvalidInputf("invalid batch: %v", err))
		return
	}
	if len(calls) == 0 || len(calls) > MaxBatch {
		rt.writeError(w, req, errors.InvalidInputf("batch must hold 1 to %d calls", MaxBatch))
		return
	}

	out := make([]Envelope, len(calls))
	for i, c := range calls {
		result, err := rt.Call(req.Context(), c.Procedure, c.Input)
		if err != nil {
			out[i] = Envelope{Error: payload(req, err)}
			continue
		}
		out[i] = Envelope{Result: result}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (rt *Router) writeError(w http.ResponseWriter, req *http.Request, err error) {
	p := payload(req, err)
	httputil.WriteJSON(w, errors.HTTPStatus(err), Envelope{Error: p})
}

func payload(req *http.Request, err error) *httputil.ErrorPayload {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("Internal server error", err)
	}
	return &httputil.ErrorPayload{
		Code:    string(se.Code),
		Message: se.Message,
		Details: se.Details,
		TraceID: logging.GetTraceID(req.Context()),
	}
}

func readBody(req *http.Request) (json.RawMessage, error) {
	if req.Body == nil {
		return nil, nil
	}
	data, truncated, err := httputil.ReadAllWithLimit(req.Body, httputil.MaxRequestBodyBytes)
	if err != nil && err != io.EOF {
		return nil, errors.InvalidInputf("read body: %v", err)
	}
	if truncated {
		return nil, errors.InvalidInput("request body too large")
	}
	return data, nil
}
