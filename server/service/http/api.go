/*
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/coderr"
	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"github.com/apache/incubator-horaedb-extcatalog/server/config"
	"github.com/apache/incubator-horaedb-extcatalog/server/limiter"
	"github.com/apache/incubator-horaedb-extcatalog/server/planner"
	"github.com/apache/incubator-horaedb-extcatalog/server/status"
	"github.com/apache/incubator-horaedb-extcatalog/server/worker"
	"go.uber.org/zap"
)

func NewAPI(catalogManager *catalog.Manager, planner *planner.Planner, workers *worker.RegistryImpl, serverStatus *status.ServerStatus, forwardClient *ForwardClient, flowLimiter *limiter.FlowLimiter) *API {
	return &API{
		catalogManager: catalogManager,
		planner:        planner,
		workers:        workers,
		serverStatus:   serverStatus,
		forwardClient:  forwardClient,
		flowLimiter:    flowLimiter,
	}
}

func (a *API) NewAPIRouter() *Router {
	router := New().WithPrefix(apiPrefix).WithInstrumentation(printRequestInsmt)

	// Register catalog API.
	router.Get("/catalogs", wrap(a.listCatalogs, false, a.forwardClient))
	router.Post(fmt.Sprintf("/catalogs/:%s/init", catalogParam), wrap(a.initCatalog, false, a.forwardClient))
	router.Post(fmt.Sprintf("/catalogs/:%s/refresh", catalogParam), wrap(a.refreshCatalog, true, a.forwardClient))
	router.Get(fmt.Sprintf("/catalogs/:%s/databases", catalogParam), wrap(a.listDatabases, false, a.forwardClient))
	router.Get(fmt.Sprintf("/catalogs/:%s/databases/:%s", catalogParam, databaseParam), wrap(a.getDatabase, false, a.forwardClient))
	router.Post(fmt.Sprintf("/catalogs/:%s/databases/:%s/load", catalogParam, databaseParam), wrap(a.loadDatabase, false, a.forwardClient))
	router.Get(fmt.Sprintf("/catalogs/:%s/databases/:%s/tables", catalogParam, databaseParam), wrap(a.listTables, false, a.forwardClient))
	router.Get(fmt.Sprintf("/catalogs/:%s/databases/:%s/tables/:%s", catalogParam, databaseParam, tableParam), wrap(a.tableExists, false, a.forwardClient))
	router.Get(fmt.Sprintf("/catalogs/:%s/database-ids", catalogParam), wrap(a.listDatabaseIDs, false, a.forwardClient))
	router.Get(fmt.Sprintf("/catalogs/:%s/database-ids/:%s", catalogParam, idParam), wrap(a.getDatabaseByID, false, a.forwardClient))

	// Register table valued function API.
	router.Post("/tvf/plan", wrap(a.planScanTasks, false, a.forwardClient))
	router.Get(fmt.Sprintf("/tvf/:%s/columns", kindParam), wrap(a.describeColumns, false, a.forwardClient))

	// Register worker API.
	router.Post("/worker/heartbeat", wrap(a.workerHeartbeat, false, a.forwardClient))
	router.Get("/workers", wrap(a.listWorkers, false, a.forwardClient))

	router.Get("/flowLimiter", wrap(a.getFlowLimiter, false, a.forwardClient))
	router.Put("/flowLimiter", wrap(a.updateFlowLimiter, false, a.forwardClient))
	router.Get("/health", wrap(a.health, false, a.forwardClient))

	// Register debug API.
	router.GetWithoutPrefix("/debug/pprof/profile", pprof.Profile)
	router.GetWithoutPrefix("/debug/pprof/symbol", pprof.Symbol)
	router.GetWithoutPrefix("/debug/pprof/trace", pprof.Trace)
	router.GetWithoutPrefix("/debug/pprof/heap", a.pprofHeap)
	router.GetWithoutPrefix("/debug/pprof/goroutine", a.pprofGoroutine)
	router.GetWithoutPrefix("/debug/leader", wrap(a.getLeader, false, a.forwardClient))

	return router
}

func (a *API) getLeader(req *http.Request) apiFuncResult {
	leaderAddr, err := a.forwardClient.GetLeaderAddr(req.Context())
	if err != nil {
		log.Error("get leader addr failed", zap.Error(err))
		return errResult(err)
	}
	return okResult(leaderAddr)
}

func (a *API) listCatalogs(_ *http.Request) apiFuncResult {
	metas := a.catalogManager.List()
	infos := make([]CatalogInfo, 0, len(metas))
	for _, meta := range metas {
		c, err := a.catalogManager.GetByID(meta.ID)
		if err != nil {
			return errResult(err)
		}
		infos = append(infos, catalogInfo(c))
	}
	return okResult(infos)
}

func (a *API) initCatalog(req *http.Request) apiFuncResult {
	c, err := a.getCatalog(req)
	if err != nil {
		return errResult(err)
	}
	if err := c.EnsureInitialized(req.Context()); err != nil {
		log.Error("init catalog failed", zap.String("catalog", c.Meta().Name), zap.Error(err))
		return errResult(err)
	}
	return okResult(catalogInfo(c))
}

// refreshCatalog invalidates the catalog on the leader and initializes it again.
func (a *API) refreshCatalog(req *http.Request) apiFuncResult {
	c, err := a.getCatalog(req)
	if err != nil {
		return errResult(err)
	}
	log.Info("refresh catalog request", zap.String("catalog", c.Meta().Name))

	if err := c.Invalidate(req.Context()); err != nil {
		log.Error("invalidate catalog failed", zap.String("catalog", c.Meta().Name), zap.Error(err))
		return errResult(err)
	}
	if err := c.EnsureInitialized(req.Context()); err != nil {
		log.Error("init catalog failed", zap.String("catalog", c.Meta().Name), zap.Error(err))
		return errResult(err)
	}
	return okResult(catalogInfo(c))
}

func (a *API) listDatabases(req *http.Request) apiFuncResult {
	c, err := a.getCatalog(req)
	if err != nil {
		return errResult(err)
	}
	names, err := c.ListDatabaseNames(req.Context())
	if err != nil {
		return errResult(err)
	}
	return okResult(names)
}

func (a *API) getDatabase(req *http.Request) apiFuncResult {
	c, err := a.getCatalog(req)
	if err != nil {
		return errResult(err)
	}
	name := Param(req.Context(), databaseParam)
	db, ok, err := c.GetDatabaseByName(req.Context(), name)
	if err != nil {
		return errResult(err)
	}
	if !ok {
		return errResult(catalog.ErrDatabaseNotFound.WithMessagef("catalog:%s, database:%s", c.Meta().Name, name))
	}
	return okResult(databaseInfo(db))
}

func (a *API) listDatabaseIDs(req *http.Request) apiFuncResult {
	c, err := a.getCatalog(req)
	if err != nil {
		return errResult(err)
	}
	ids, err := c.GetDatabaseIDs(req.Context())
	if err != nil {
		return errResult(err)
	}
	return okResult(ids)
}

func (a *API) getDatabaseByID(req *http.Request) apiFuncResult {
	c, err := a.getCatalog(req)
	if err != nil {
		return errResult(err)
	}
	rawID := Param(req.Context(), idParam)
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return errResult(ErrParseRequest.WithCausef(err, "database id:%s", rawID))
	}
	db, ok, err := c.GetDatabaseByID(req.Context(), catalog.DatabaseID(id))
	if err != nil {
		return errResult(err)
	}
	if !ok {
		return errResult(catalog.ErrDatabaseNotFound.WithMessagef("catalog:%s, database id:%d", c.Meta().Name, id))
	}
	return okResult(databaseInfo(db))
}

func (a *API) loadDatabase(req *http.Request) apiFuncResult {
	c, err := a.getCatalog(req)
	if err != nil {
		return errResult(err)
	}
	name := Param(req.Context(), databaseParam)
	if err := c.LoadDatabase(req.Context(), name); err != nil {
		log.Error("load database failed", zap.String("catalog", c.Meta().Name), zap.String("database", name), zap.Error(err))
		return errResult(err)
	}
	return okResult(statusSuccess)
}

func (a *API) listTables(req *http.Request) apiFuncResult {
	c, err := a.getCatalog(req)
	if err != nil {
		return errResult(err)
	}
	tables, err := c.ListTableNames(req.Context(), Param(req.Context(), databaseParam))
	if err != nil {
		return errResult(err)
	}
	return okResult(tables)
}

func (a *API) tableExists(req *http.Request) apiFuncResult {
	c, err := a.getCatalog(req)
	if err != nil {
		return errResult(err)
	}
	dbName, tableName := Param(req.Context(), databaseParam), Param(req.Context(), tableParam)
	exists, err := c.TableExists(req.Context(), dbName, tableName)
	if err != nil {
		return errResult(err)
	}
	return okResult(TableExistsResult{Database: dbName, Table: tableName, Exists: exists})
}

func (a *API) planScanTasks(req *http.Request) apiFuncResult {
	var planReq PlanRequest
	if err := json.NewDecoder(req.Body).Decode(&planReq); err != nil {
		return errResult(ErrParseRequest.WithCause(err))
	}

	tasks, err := a.planner.Plan(req.Context(), planner.Request{
		Kind:        planReq.Kind,
		Parallelism: planReq.Parallelism,
		Params:      planReq.Params,
	})
	if err != nil {
		log.Warn("plan scan tasks failed", zap.String("kind", planReq.Kind), zap.Error(err))
		return errResult(err)
	}

	infos := make([]ScanTaskInfo, 0, len(tasks))
	for _, task := range tasks {
		infos = append(infos, ScanTaskInfo{
			WorkerID:   task.Worker.ID,
			WorkerName: task.Worker.Name,
			Endpoint:   task.Worker.Endpoint,
			Kind:       task.Range.Kind(),
			Range:      task.Range,
		})
	}
	return okResult(infos)
}

func (a *API) describeColumns(req *http.Request) apiFuncResult {
	source, err := a.planner.Source(Param(req.Context(), kindParam))
	if err != nil {
		return errResult(err)
	}
	return okResult(source.Columns())
}

func (a *API) workerHeartbeat(req *http.Request) apiFuncResult {
	var heartbeat WorkerHeartbeatRequest
	if err := json.NewDecoder(req.Body).Decode(&heartbeat); err != nil {
		return errResult(ErrParseRequest.WithCause(err))
	}
	if heartbeat.Endpoint == "" {
		return errResult(ErrParseRequest.WithMessagef("empty worker endpoint"))
	}

	a.workers.Heartbeat(heartbeat.Endpoint)
	return okResult(statusSuccess)
}

func (a *API) listWorkers(_ *http.Request) apiFuncResult {
	nodes := a.workers.AllWorkers()
	infos := make([]WorkerInfo, 0, len(nodes))
	for _, n := range nodes {
		infos = append(infos, WorkerInfo{
			ID:            n.ID,
			Name:          n.Name,
			Endpoint:      n.Endpoint,
			LastTouchTime: n.LastTouchTime,
			Live:          a.workers.IsLive(n),
		})
	}
	return okResult(infos)
}

func (a *API) getFlowLimiter(_ *http.Request) apiFuncResult {
	return okResult(a.flowLimiter.GetConfig())
}

func (a *API) updateFlowLimiter(req *http.Request) apiFuncResult {
	var updateFlowLimiterRequest UpdateFlowLimiterRequest
	if err := json.NewDecoder(req.Body).Decode(&updateFlowLimiterRequest); err != nil {
		return errResult(ErrParseRequest.WithCause(err))
	}

	log.Info("update flow limiter request", zap.String("request", fmt.Sprintf("%+v", updateFlowLimiterRequest)))

	newLimiterConfig := config.LimiterConfig{
		Limit:  updateFlowLimiterRequest.Limit,
		Burst:  updateFlowLimiterRequest.Burst,
		Enable: updateFlowLimiterRequest.Enable,
	}
	if err := a.flowLimiter.UpdateLimiter(newLimiterConfig); err != nil {
		log.Error("update flow limiter failed", zap.Error(err))
		return errResult(ErrUpdateFlowLimiter.WithCause(err))
	}

	return okResult(statusSuccess)
}

func (a *API) health(_ *http.Request) apiFuncResult {
	if a.serverStatus.IsHealthy() {
		return okResult(nil)
	}
	return errResult(ErrHealthCheck.WithMessagef("status:%s", a.serverStatus.Get()))
}

func (a *API) getCatalog(req *http.Request) (catalog.Catalog, error) {
	return a.catalogManager.GetByName(Param(req.Context(), catalogParam))
}

func catalogInfo(c catalog.Catalog) CatalogInfo {
	meta := c.Meta()
	return CatalogInfo{
		ID:              uint64(meta.ID),
		Name:            meta.Name,
		Kind:            string(meta.Kind),
		Properties:      meta.Properties,
		Initialized:     c.Replica().IsInitialized(),
		AppliedRevision: c.Replica().AppliedRevision(),
	}
}

func databaseInfo(db *catalog.Database) DatabaseInfo {
	return DatabaseInfo{
		ID:          uint64(db.ID),
		Name:        db.Name,
		Initialized: db.IsInitialized(),
	}
}

func (a *API) pprofHeap(writer http.ResponseWriter, req *http.Request) {
	pprof.Handler("heap").ServeHTTP(writer, req)
}

func (a *API) pprofGoroutine(writer http.ResponseWriter, req *http.Request) {
	pprof.Handler("goroutine").ServeHTTP(writer, req)
}

// printRequestInsmt used for printing every request information.
func printRequestInsmt(handlerName string, handler http.HandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		bodyByte, err := io.ReadAll(request.Body)
		if err != nil {
			log.Error("read request body failed", zap.Error(err))
			return
		}
		request.Body = io.NopCloser(bytes.NewReader(bodyByte))
		log.Debug("receive http request", zap.String("handlerName", handlerName), zap.String("client host", request.RemoteAddr), zap.String("method", request.Method), zap.String("path", request.URL.Path), zap.String("body", string(bodyByte)))
		handler.ServeHTTP(writer, request)
	}
}

func respondForward(w http.ResponseWriter, response *http.Response) {
	defer response.Body.Close()

	b, err := io.ReadAll(response.Body)
	if err != nil {
		log.Error("read response failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	for key, valArr := range response.Header {
		for _, val := range valArr {
			w.Header().Add(key, val)
		}
	}
	w.WriteHeader(response.StatusCode)
	if n, err := w.Write(b); err != nil {
		log.Error("write response failed", zap.Int("msg", n), zap.Error(err))
	}
}

func respond(w http.ResponseWriter, data interface{}) {
	b, err := json.Marshal(&response{
		Status: statusSuccess,
		Data:   data,
		Error:  "",
		Code:   0,
	})
	if err != nil {
		log.Error("marshal json response failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if n, err := w.Write(b); err != nil {
		log.Error("write response failed", zap.Int("msg", n), zap.Error(err))
	}
}

// respondError derives the http status from the code of the error cause, and falls back to internal error.
func respondError(w http.ResponseWriter, apiErr error) {
	code, ok := coderr.GetCauseCode(apiErr)
	if !ok {
		code = coderr.Internal
	}

	b, err := json.Marshal(&response{
		Status: statusError,
		Data:   nil,
		Error:  apiErr.Error(),
		Code:   code.ToInt(),
	})
	if err != nil {
		log.Error("marshal json response failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.ToHTTPCode())
	if n, err := w.Write(b); err != nil {
		log.Error("write response failed", zap.Int("msg", n), zap.Error(err))
	}
}

func wrap(f apiFunc, needForward bool, forwardClient *ForwardClient) http.HandlerFunc {
	hf := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if needForward {
			resp, isLeader, err := forwardClient.forwardToLeader(r)
			if err != nil {
				log.Error("forward to leader failed", zap.Error(err))
				respondError(w, ErrForwardToLeader.WithCause(err))
				return
			}
			if !isLeader {
				respondForward(w, resp)
				return
			}
		}
		result := f(r)
		if result.err != nil {
			respondError(w, result.err)
			return
		}
		respond(w, result.data)
	})
	return hf
}
