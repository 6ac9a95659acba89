// Package status serves link and pin status over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"

	"github.com/robotalks/mcuconn/pkg/connector"
	fx "github.com/robotalks/mcuconn/pkg/framework"
	"github.com/robotalks/mcuconn/pkg/hal"
	"github.com/robotalks/mcuconn/pkg/l0/serial"
)

const httpTimeout = 3 * time.Second

// Server is the status API.
type Server struct {
	Addr      string
	Connector *connector.Connector
	Sink      *hal.Registry
	// Devices lists serial devices, serial.List if nil.
	Devices func() ([]string, error)
	// Clock is time.Now if nil.
	Clock func() time.Time
}

// Handler builds the routes.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/links", s.handleLinks)
	router.GET("/links/:alias", s.handleLink)
	router.POST("/links/:alias/reset", s.handleReset)
	router.GET("/pins", s.handlePins)
	router.GET("/devices", s.handleDevices)
	return router
}

// AddToLoop implements fx.LoopAdder.
func (s *Server) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(fx.NamedRun("http", s))
}

// Run implements fx.Runnable.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}
	var shutdownErr error
	err := fx.RunWithContextCancel(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()
		shutdownErr = server.Shutdown(shutdownCtx)
	}, func() error {
		glog.Infof("status API listening on %s", s.Addr)
		return server.ListenAndServe()
	})
	errs := &fx.AggregatedError{}
	errs.AddUnless(context.Canceled, err)
	errs.Add(shutdownErr)
	return errs.Aggregate()
}

func (s *Server) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

type linksReply struct {
	Links    []connector.Status `json:"links"`
	Disabled []string           `json:"disabled,omitempty"`
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	reply := linksReply{Links: s.Connector.Statuses()}
	for _, b := range s.Connector.Disabled {
		reply.Disabled = append(reply.Disabled, b.Alias)
	}
	writeJSON(w, http.StatusOK, &reply)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	conn, err := s.Connector.Connection(p.ByName("alias"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	status := conn.Status()
	writeJSON(w, http.StatusOK, &status)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	err := s.Connector.Reset(p.ByName("alias"), s.now())
	switch {
	case errors.Is(err, connector.ErrUnknownLink):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusConflict, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type pinReply struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Direction string    `json:"direction"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Server) handlePins(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pins := []pinReply{}
	for _, pin := range s.Sink.Snapshot(r.URL.Query().Get("prefix")) {
		pins = append(pins, pinReply{
			Name:      pin.Name,
			Type:      pin.Type.String(),
			Direction: pin.Direction.String(),
			Value:     pin.Value,
			UpdatedAt: pin.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, pins)
}

type deviceReply struct {
	Device string `json:"device"`
	Alias  string `json:"alias,omitempty"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	list := s.Devices
	if list == nil {
		list = serial.List
	}
	ports, err := list()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	devices := []deviceReply{}
	for _, port := range ports {
		d := deviceReply{Device: port}
		for _, conn := range s.Connector.Connections() {
			if serial.Contains([]string{port}, conn.Link.Device) {
				d.Alias = conn.Link.Alias
			}
		}
		devices = append(devices, d)
	}
	writeJSON(w, http.StatusOK, devices)
}

type errorReply struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, &errorReply{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningf("write reply: %v", err)
	}
}
