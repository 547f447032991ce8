package restapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/clusterstate/internal/master"
)

// maxBodySize bounds PUT bodies.
const maxBodySize = 1 << 20

// Handler serves the state API over HTTP.
type Handler struct {
	service *Service
	log     logrus.FieldLogger
}

// NewHandler returns a handler for service.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, log: service.log}
}

// Register adds the state API routes to router.
func (h *Handler) Register(router *httprouter.Router) {
	router.GET(Prefix, h.handleGet)
	router.GET(Prefix+"/*unit", h.handleGet)
	router.PUT(Prefix, h.handlePut)
	router.PUT(Prefix+"/*unit", h.handlePut)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	recursive, err := ParseRecursive(q.Get("recursive"), q.Has("recursive"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.service.GetState(r.Context(), GetRequest{Unit: UnitPath(r.URL.Path), Recursive: recursive})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	timeout, err := ParseTimeout(q.Get("timeout"), q.Has("timeout"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body, err := ParseSetBody(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.service.SetUnitState(r.Context(), SetRequest{
		Unit:         UnitPath(r.URL.Path),
		States:       body.States,
		Condition:    body.Condition,
		ResponseWait: body.ResponseWait,
		Timeout:      timeout,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError renders err once, at the protocol boundary.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err, func(host string, port int) string {
		return master.Location(host, port, r.URL.Path, queryOptions(r.URL.RawQuery))
	})

	entry := h.log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": apiErr.Status,
		"code":   apiErr.code(),
	})
	switch apiErr.Kind {
	case KindOtherMaster:
		entry.WithField("location", apiErr.Location).Debug("redirecting to master")
	case KindUnknownMaster, KindDeadlineExceeded:
		entry.Warn(apiErr.Message)
	case KindInternal:
		entry.WithError(err).Error("failed to process request")
	default:
		entry.Debug(apiErr.Message)
	}

	if apiErr.Location != "" {
		w.Header().Set("Location", apiErr.Location)
	}
	writeJSON(w, apiErr.Status, errorBody{Code: apiErr.code(), Message: apiErr.Error()})
}

// queryOptions returns the decoded query options in the order they arrived.
func queryOptions(rawQuery string) []master.Option {
	var opts []master.Option
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		if dk, err := url.QueryUnescape(k); err == nil {
			k = dk
		}
		if dv, err := url.QueryUnescape(v); err == nil {
			v = dv
		}
		opts = append(opts, master.Option{Key: k, Value: v})
	}
	return opts
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
