// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zenflow/internal/config"
	"github.com/pbinitiative/zenflow/internal/definition"
	"github.com/pbinitiative/zenflow/internal/log"
	apierror "github.com/pbinitiative/zenflow/internal/rest/error"
	"github.com/pbinitiative/zenflow/internal/rest/middleware"
	"github.com/pbinitiative/zenflow/pkg/bpmn"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	PaginationDefaultPage = 1
	PaginationDefaultSize = 10
	PaginationMaxSize     = 1000
)

type Server struct {
	engine      *bpmn.Engine
	definitions *definition.Registry
	// persistence is optional, without it only instances known to the engine are visible
	persistence storage.Storage
	addr        string
	server      *http.Server
	startedAt   time.Time
}

func NewServer(engine *bpmn.Engine, definitions *definition.Registry, persistence storage.Storage, conf config.Config) *Server {
	r := chi.NewRouter()
	s := Server{
		engine:      engine,
		definitions: definitions,
		persistence: persistence,
		addr:        conf.HttpServer.Addr,
		server: &http.Server{
			ReadHeaderTimeout: 3 * time.Second,
			Handler:           r,
			Addr:              conf.HttpServer.Addr,
		},
		startedAt: time.Now(),
	}
	r.Use(middleware.Cors())
	r.Use(middleware.RequestId())
	r.Use(middleware.Opentelemetry(conf))
	contextPath := conf.HttpServer.Context
	if contextPath == "" {
		contextPath = "/"
	}
	r.Route(contextPath, func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Use(middleware.StripEmptyQueryParams())
			r.Get("/process-definitions", s.GetProcessDefinitions)
			r.Get("/process-definitions/{definitionId}", s.GetProcessDefinition)
			r.Post("/process-definitions/{definitionId}/instances", s.CreateProcessInstance)
			r.Get("/process-instances", s.GetProcessInstances)
			r.Get("/process-instances/{processInstanceKey}", s.GetProcessInstance)
			r.Post("/process-instances/{processInstanceKey}/cancel", s.CancelProcessInstance)
		})
		// register system endpoints
		r.Route("/system", func(r chi.Router) {
			r.Get("/metrics", promhttp.Handler().ServeHTTP)
			r.Get("/status", s.GetStatus)
		})
	})
	return &s
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() (net.Listener, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	log.Info("ZenFlow REST server listening on %s", listener.Addr())
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Error starting server: %s", err)
		}
	}()
	return listener, nil
}

func (s *Server) Stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		log.Error("Error stopping server: %s", err)
	}
}

func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJson(w, r, http.StatusOK, SystemStatus{
		Name:             s.engine.Name(),
		StartedAt:        s.startedAt,
		Definitions:      len(s.definitions.List()),
		RunningInstances: len(s.engine.RunningInstances()),
	})
}

func (s *Server) GetProcessDefinitions(w http.ResponseWriter, r *http.Request) {
	definitions := s.definitions.List()
	items := make([]ProcessDefinitionSimple, 0, len(definitions))
	for _, d := range definitions {
		items = append(items, toProcessDefinitionSimple(d))
	}
	writeJson(w, r, http.StatusOK, ProcessDefinitionsPage{
		Items: items,
		Count: len(items),
	})
}

func (s *Server) GetProcessDefinition(w http.ResponseWriter, r *http.Request) {
	d, err := s.definitions.Get(chi.URLParam(r, "definitionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJson(w, r, http.StatusOK, toProcessDefinitionDetail(d))
}

func (s *Server) CreateProcessInstance(w http.ResponseWriter, r *http.Request) {
	d, err := s.definitions.Get(chi.URLParam(r, "definitionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body CreateProcessInstanceRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, apierror.ApiError{
				Message: fmt.Sprintf("failed to decode request body: %s", err),
				Type:    apierror.TypeBadRequest,
			})
			return
		}
	}
	// the instance outlives the request, Start detaches from its cancellation
	instance, err := s.engine.CreateAndStartInstance(r.Context(), d.Graph, body.Variables, bpmn.InstanceWithDefinitionId(d.Id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Infof(r.Context(), "started process instance %d of %s", instance.Key(), d.Id)
	writeJson(w, r, http.StatusCreated, CreateProcessInstanceResponse{
		Key: instance.Key(),
	})
}

func (s *Server) GetProcessInstances(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, size, err := pagination(query.Get("page"), query.Get("size"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var states []runtime.ProcessInstanceState
	for _, state := range query["state"] {
		states = append(states, runtime.ProcessInstanceState(state))
	}
	definitionId := query.Get("definitionId")

	snapshots, err := s.findProcessInstances(r.Context(), states)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items := make([]ProcessInstanceSimple, 0)
	for _, snapshot := range snapshots {
		if definitionId != "" && snapshot.DefinitionId != definitionId {
			continue
		}
		items = append(items, toProcessInstanceSimple(snapshot))
	}
	total := len(items)
	start := min((page-1)*size, total)
	end := min(start+size, total)
	writeJson(w, r, http.StatusOK, ProcessInstancePage{
		Items: items[start:end],
		Page:  page,
		Size:  size,
		Count: end - start,
		Total: total,
	})
}

func (s *Server) findProcessInstances(ctx context.Context, states []runtime.ProcessInstanceState) ([]storage.ProcessInstance, error) {
	if s.persistence != nil {
		return s.persistence.FindProcessInstancesByState(ctx, states...)
	}
	var res []storage.ProcessInstance
	for _, instance := range s.engine.RunningInstances() {
		snapshot := instance.Snapshot()
		if len(states) == 0 || containsState(states, snapshot.State) {
			res = append(res, snapshot)
		}
	}
	return res, nil
}

func containsState(states []runtime.ProcessInstanceState, state runtime.ProcessInstanceState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func (s *Server) GetProcessInstance(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(chi.URLParam(r, "processInstanceKey"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	instance, err := s.engine.FindProcessInstance(key)
	if err == nil {
		writeJson(w, r, http.StatusOK, toProcessInstanceDetail(instance.Snapshot(), instance.Tokens()))
		return
	}
	if s.persistence == nil {
		writeError(w, r, err)
		return
	}
	snapshot, err := s.persistence.FindProcessInstanceByKey(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tokens, err := s.persistence.GetTokensForProcessInstance(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJson(w, r, http.StatusOK, toProcessInstanceDetail(snapshot, tokens))
}

// CancelProcessInstance cancels the instance and waits until its tokens are terminated
func (s *Server) CancelProcessInstance(w http.ResponseWriter, r *http.Request) {
	key, err := parseKey(chi.URLParam(r, "processInstanceKey"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	instance, err := s.engine.FindProcessInstance(key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	instance.Cancel()
	if _, err := instance.AwaitCompletion(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	log.Infof(r.Context(), "process instance %d: %s", key, instance.Status())
	writeJson(w, r, http.StatusOK, toProcessInstanceDetail(instance.Snapshot(), instance.Tokens()))
}

func parseKey(value string) (int64, error) {
	key, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, apierror.ApiError{
			Message: fmt.Sprintf("invalid process instance key %q", value),
			Type:    apierror.TypeBadRequest,
		}
	}
	return key, nil
}

func pagination(pageValue string, sizeValue string) (int, int, error) {
	page, size := PaginationDefaultPage, PaginationDefaultSize
	var err error
	if pageValue != "" {
		if page, err = strconv.Atoi(pageValue); err != nil || page < 1 {
			return 0, 0, apierror.ApiError{Message: fmt.Sprintf("invalid page %q", pageValue), Type: apierror.TypeBadRequest}
		}
	}
	if sizeValue != "" {
		if size, err = strconv.Atoi(sizeValue); err != nil || size < 1 || size > PaginationMaxSize {
			return 0, 0, apierror.ApiError{Message: fmt.Sprintf("invalid size %q", sizeValue), Type: apierror.TypeBadRequest}
		}
	}
	return page, size, nil
}

func writeJson(w http.ResponseWriter, r *http.Request, status int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Errorf(r.Context(), "Server error: %s", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr apierror.ApiError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Type == apierror.TypeBadRequest {
			status = http.StatusBadRequest
		}
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
		apiErr = apierror.ApiError{Message: err.Error(), Type: apierror.TypeNotFound}
	case errors.Is(err, bpmn.ErrInstanceAlreadyStarted):
		status = http.StatusConflict
		apiErr = apierror.ApiError{Message: err.Error(), Type: apierror.TypeConflict}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		apiErr = apierror.ApiError{Message: err.Error(), Type: apierror.TypeError}
	default:
		apiErr = apierror.ApiError{Message: err.Error(), Type: apierror.TypeError}
	}
	if status >= http.StatusInternalServerError {
		log.Errorf(r.Context(), "request failed: %s", err)
	}
	writeJson(w, r, status, apiErr)
}
