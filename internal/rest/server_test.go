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
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pbinitiative/zenflow/internal/config"
	"github.com/pbinitiative/zenflow/internal/definition"
	apierror "github.com/pbinitiative/zenflow/internal/rest/error"
	"github.com/pbinitiative/zenflow/internal/rest/middleware"
	"github.com/pbinitiative/zenflow/pkg/bpmn"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sequenceDefinition = `
id: sequence
name: Sequence
start: a
elements:
  - id: a
    kind: ACTIVITY
  - id: b
    kind: ACTIVITY
flows:
  - source: a
    target: b
`

const blockingDefinition = `
id: blocking
start: wait
elements:
  - id: wait
    kind: ACTIVITY
`

type testServer struct {
	server  *Server
	engine  *bpmn.Engine
	storage *inmemory.Storage
}

func newTestServer(t *testing.T) *testServer {
	registry := definition.NewRegistry()
	for _, document := range []string{sequenceDefinition, blockingDefinition} {
		d, err := definition.Parse([]byte(document))
		require.NoError(t, err)
		registry.Register(d)
	}
	store := inmemory.NewStorage()
	engine := bpmn.NewEngine(
		bpmn.EngineWithName("rest-test"),
		bpmn.EngineWithStorage(store),
		bpmn.EngineWithInvoker(bpmn.InvokerFunc(func(ctx context.Context, activation bpmn.Activation) (map[string]any, error) {
			if activation.ElementId == "wait" {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return map[string]any{activation.ElementId: true}, nil
		})),
	)
	t.Cleanup(engine.Stop)
	conf := config.Config{HttpServer: config.HttpServer{Context: "/", Addr: "127.0.0.1:0"}, Name: "rest-test"}
	return &testServer{
		server:  NewServer(engine, registry, store, conf),
		engine:  engine,
		storage: store,
	}
}

func (ts *testServer) do(t *testing.T, method string, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var res T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return res
}

func (ts *testServer) await(t *testing.T, key int64) {
	instance, err := ts.engine.FindProcessInstance(key)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	_, err = instance.AwaitCompletion(ctx)
	require.NoError(t, err)
}

func TestGetProcessDefinitions(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/process-definitions", "")

	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[ProcessDefinitionsPage](t, rec)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "blocking", page.Items[0].Id)
	assert.Equal(t, "sequence", page.Items[1].Id)
	assert.Equal(t, 2, page.Items[1].Elements)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIdHeader))
}

func TestGetProcessDefinition(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/process-definitions/sequence", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[ProcessDefinitionDetail](t, rec)
	assert.Equal(t, "Sequence", detail.Name)
	assert.Len(t, detail.FlowElements, 2)
	assert.Len(t, detail.Flows, 1)

	rec = ts.do(t, http.MethodGet, "/v1/process-definitions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierror.TypeNotFound, decode[apierror.ApiError](t, rec).Type)
}

func TestCreateAndGetProcessInstance(t *testing.T) {
	// given
	ts := newTestServer(t)

	// when
	rec := ts.do(t, http.MethodPost, "/v1/process-definitions/sequence/instances", `{"variables": {"orderId": "o-1"}}`)

	// then
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[CreateProcessInstanceResponse](t, rec)
	assert.NotZero(t, created.Key)
	ts.await(t, created.Key)

	rec = ts.do(t, http.MethodGet, "/v1/process-instances/"+strconv.FormatInt(created.Key, 10), "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[ProcessInstanceDetail](t, rec)
	assert.Equal(t, created.Key, detail.Key)
	assert.Equal(t, "sequence", detail.DefinitionId)
	assert.Equal(t, runtime.ProcessInstanceStateCompleted, detail.State)
	assert.Equal(t, "o-1", detail.Variables["orderId"])
	assert.Equal(t, true, detail.Variables["b"])
	require.Len(t, detail.Tokens, 1)
	assert.Equal(t, runtime.TokenStateCompleted, detail.Tokens[0].State)
}

func TestCreateProcessInstanceWithoutBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/process-definitions/sequence/instances", "")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ts.await(t, decode[CreateProcessInstanceResponse](t, rec).Key)
}

func TestCreateProcessInstanceErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/process-definitions/missing/instances", "{}")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/process-definitions/sequence/instances", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierror.TypeBadRequest, decode[apierror.ApiError](t, rec).Type)
}

func TestGetProcessInstanceErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/process-instances/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/process-instances/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProcessInstances(t *testing.T) {
	// given
	ts := newTestServer(t)
	for range 3 {
		rec := ts.do(t, http.MethodPost, "/v1/process-definitions/sequence/instances", "")
		require.Equal(t, http.StatusCreated, rec.Code)
		ts.await(t, decode[CreateProcessInstanceResponse](t, rec).Key)
	}
	rec := ts.do(t, http.MethodPost, "/v1/process-definitions/blocking/instances", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	// when
	rec = ts.do(t, http.MethodGet, "/v1/process-instances?definitionId=sequence&page=1&size=2&state=", "")

	// then
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[ProcessInstancePage](t, rec)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Count)
	assert.Len(t, page.Items, 2)

	rec = ts.do(t, http.MethodGet, "/v1/process-instances?state=RUNNING", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[ProcessInstancePage](t, rec)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "blocking", page.Items[0].DefinitionId)

	rec = ts.do(t, http.MethodGet, "/v1/process-instances?size=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelProcessInstance(t *testing.T) {
	// given
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/v1/process-definitions/blocking/instances", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	key := decode[CreateProcessInstanceResponse](t, rec).Key

	// when
	rec = ts.do(t, http.MethodPost, "/v1/process-instances/"+strconv.FormatInt(key, 10)+"/cancel", "")

	// then
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail := decode[ProcessInstanceDetail](t, rec)
	assert.Equal(t, runtime.ProcessInstanceStateCancelled, detail.State)
	require.Len(t, detail.Tokens, 1)
	assert.Equal(t, runtime.TokenStateTerminated, detail.Tokens[0].State)
	assert.Equal(t, runtime.TokenSubStateCancelled, detail.Tokens[0].SubState)

	stored, err := ts.storage.FindProcessInstanceByKey(t.Context(), key)
	require.NoError(t, err)
	assert.Equal(t, runtime.ProcessInstanceStateCancelled, stored.State)
}

func TestGetStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/system/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[SystemStatus](t, rec)
	assert.Equal(t, "rest-test", status.Name)
	assert.Equal(t, 2, status.Definitions)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/system/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}
