package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/stitts-dev/dfs-qubo/internal/api/handlers"
	"github.com/stitts-dev/dfs-qubo/internal/optimizer"
	"github.com/stitts-dev/dfs-qubo/internal/sampler"
	"github.com/stitts-dev/dfs-qubo/internal/store"
	"github.com/stitts-dev/dfs-qubo/pkg/cache"
	"github.com/stitts-dev/dfs-qubo/pkg/config"
	"github.com/stitts-dev/dfs-qubo/pkg/logger"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
	"github.com/stitts-dev/dfs-qubo/pkg/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.AppError `json:"error"`
	Meta    *utils.Meta     `json:"meta"`
}

type progressRecorder struct {
	mu     sync.Mutex
	steps  map[string][]string
	values map[string][]float64
}

func (p *progressRecorder) SendProgress(clientID, step string, progress float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps[clientID] = append(p.steps[clientID], step)
	p.values[clientID] = append(p.values[clientID], progress)
}

// Sampling returns the progress values of the "sampling" steps sent to clientID
func (p *progressRecorder) Sampling(clientID string) []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []float64
	for i, step := range p.steps[clientID] {
		if step == "sampling" {
			out = append(out, p.values[clientID][i])
		}
	}
	return out
}

func (p *progressRecorder) For(clientID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.steps[clientID]...)
}

type HandlersTestSuite struct {
	suite.Suite
	mr       *miniredis.Miniredis
	redis    *redis.Client
	db       *gorm.DB
	router   *gin.Engine
	progress *progressRecorder
	logger   *logrus.Logger
}

func (s *HandlersTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	s.logger = logger.NewNop()

	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	s.redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	s.Require().NoError(err)
	sqlDB, err := db.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	s.db = db

	runs := store.NewRunStore(db, s.logger)
	s.Require().NoError(runs.Migrate())

	cfg := &config.Config{
		MaxPlayers:      20,
		CacheTTL:        time.Hour,
		SamplerNumReads: 20,
		SamplerSweeps:   50,
		SamplerWorkers:  2,
		PenaltyAlpha:    1,
		PenaltyBeta:     10,
		PenaltyGamma:    100,
		PenaltyDelta:    100,

		SamplerMaxReads:  1000,
		SamplerMaxSweeps: 500,
	}

	s.progress = &progressRecorder{steps: make(map[string][]string), values: make(map[string][]float64)}
	registry := optimizer.NewRegistry(nil, 0, s.logger)
	optimization := handlers.NewOptimizationHandler(registry, cache.NewResultCache(s.redis, s.logger), runs, s.progress, cfg, s.logger)
	runsHandler := handlers.NewRunsHandler(runs, s.logger)
	health := handlers.NewHealthHandler(s.logger,
		handlers.HealthCheck{Name: "redis", Critical: true, Check: func(ctx context.Context) error { return s.redis.Ping(ctx).Err() }},
		handlers.HealthCheck{Name: "database", Check: func(ctx context.Context) error { return sqlDB.PingContext(ctx) }},
	)

	s.router = gin.New()
	v1 := s.router.Group("/api/v1")
	v1.POST("/qubo", optimization.BuildQUBO)
	v1.POST("/optimize", optimization.Optimize)
	v1.POST("/sample", optimization.Sample)
	v1.GET("/cache/status", optimization.GetCacheStatus)
	v1.DELETE("/cache", optimization.ClearCache)
	v1.GET("/runs", runsHandler.ListRuns)
	v1.GET("/runs/:id", runsHandler.GetRun)
	s.router.GET("/health", health.GetHealth)
	s.router.GET("/ready", health.GetReady)
}

func (s *HandlersTestSuite) TearDownSuite() {
	s.redis.Close()
	s.mr.Close()
}

func (s *HandlersTestSuite) SetupTest() {
	s.mr.FlushAll()
}

func (s *HandlersTestSuite) do(method, path string, body interface{}) (int, envelope) {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (s *HandlersTestSuite) optimize(body interface{}) (int, envelope, handlers.OptimizeResponse) {
	code, env := s.do(http.MethodPost, "/api/v1/optimize", body)
	var resp handlers.OptimizeResponse
	if env.Success {
		s.Require().NoError(json.Unmarshal(env.Data, &resp))
	}
	return code, env, resp
}

func (s *HandlersTestSuite) TestBuildQUBO_Defaults() {
	code, env := s.do(http.MethodPost, "/api/v1/qubo", map[string]interface{}{})
	s.Require().Equal(http.StatusOK, code)

	var resp handlers.QUBOResponse
	s.Require().NoError(json.Unmarshal(env.Data, &resp))
	s.Equal(14, resp.Size)
	s.Equal(105, resp.Entries)
	s.Len(resp.Terms, 105)
	s.Equal(1e11+1900+8100, resp.Offset)
	s.Equal(10.0, resp.Weights.Budget)
	s.Nil(env.Meta)

	_, env = s.do(http.MethodPost, "/api/v1/qubo", map[string]interface{}{})
	s.Require().NotNil(env.Meta)
	s.True(env.Meta.CacheHit)
}

func (s *HandlersTestSuite) TestOptimize_ILPCachesAndPersists() {
	code, _, resp := s.optimize(map[string]interface{}{"strategy": "ilp"})
	s.Require().Equal(http.StatusOK, code)
	s.Require().NotNil(resp.Result)
	s.False(resp.Cached)
	s.True(resp.Result.Feasible)
	s.Equal(168.0, resp.Result.Objective)
	s.NotEmpty(resp.RunID)

	code, env, cached := s.optimize(map[string]interface{}{"strategy": "ilp"})
	s.Require().Equal(http.StatusOK, code)
	s.True(cached.Cached)
	s.True(env.Meta.CacheHit)
	s.Equal(resp.Result.Assignment, cached.Result.Assignment)

	_, _, fresh := s.optimize(map[string]interface{}{"strategy": "ilp", "skip_cache": true})
	s.False(fresh.Cached)
	s.NotEqual(resp.RunID, fresh.RunID)

	code, env = s.do(http.MethodGet, "/api/v1/runs/"+resp.RunID, nil)
	s.Require().Equal(http.StatusOK, code)
	var run store.OptimizationRun
	s.Require().NoError(json.Unmarshal(env.Data, &run))
	s.Equal("ilp", run.Strategy)
	s.Equal(168.0, run.TotalPoints)

	code, env = s.do(http.MethodGet, "/api/v1/runs?limit=1", nil)
	s.Require().Equal(http.StatusOK, code)
	s.GreaterOrEqual(env.Meta.Total, int64(2))
	s.Equal(1, env.Meta.Limit)
}

func (s *HandlersTestSuite) TestOptimize_ExactReportsProgress() {
	body := map[string]interface{}{
		"strategy":  "exact",
		"client_id": "exact-client",
		"problem": types.SelectionProblem{
			Budget:               45300,
			PositionRequirements: types.PositionRequirements{"QB": 1, "RB": 2, "WR": 3, "TE": 2, "DST": 1},
			TeamSize:             9,
		},
		"weights": types.PenaltyWeights{Objective: 1, Budget: 0.0001, Position: 100, TeamSize: 100},
	}

	code, _, resp := s.optimize(body)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("qubo/exact", resp.Result.Strategy)
	s.True(resp.Result.Feasible)
	s.Equal(168.0, resp.Result.Lineup.TotalPoints)

	steps := s.progress.For("exact-client")
	s.Require().GreaterOrEqual(len(steps), 2)
	s.Equal("initialization", steps[0])
	s.Equal("completed", steps[len(steps)-1])
}

func (s *HandlersTestSuite) TestOptimize_AnnealStreamsReads() {
	body := map[string]interface{}{
		"strategy":   "anneal",
		"client_id":  "anneal-client",
		"params":     map[string]interface{}{"num_reads": 10, "sweeps": 20, "workers": 2, "seed": 3},
		"skip_cache": true,
	}

	code, _, resp := s.optimize(body)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("qubo/simulated-annealing", resp.Result.Strategy)
	s.Require().NotNil(resp.Result.SampleStats)

	s.Len(s.progress.Sampling("anneal-client"), 10)
}

func (s *HandlersTestSuite) TestOptimize_ThrottlesSamplingProgress() {
	body := map[string]interface{}{
		"strategy":   "anneal",
		"client_id":  "throttled-client",
		"params":     map[string]interface{}{"num_reads": 500, "sweeps": 5, "workers": 2, "seed": 1},
		"skip_cache": true,
	}

	code, _, _ := s.optimize(body)
	s.Require().Equal(http.StatusOK, code)

	sampling := s.progress.Sampling("throttled-client")
	s.Require().NotEmpty(sampling)
	s.LessOrEqual(len(sampling), 101)
	s.Equal(1.0, sampling[len(sampling)-1])
	for i := 1; i < len(sampling); i++ {
		s.GreaterOrEqual(sampling[i]-sampling[i-1], 0.01-1e-9)
	}
}

func (s *HandlersTestSuite) TestOptimize_Errors() {
	tooMany := make([]types.Player, 21)
	for i := range tooMany {
		tooMany[i] = types.Player{ID: i, Position: "QB", ProjectedPoints: 1, Salary: 1}
	}

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"malformed json", `{"strategy":`, http.StatusBadRequest, utils.ErrCodeValidation},
		{"unknown strategy", map[string]interface{}{"strategy": "tabu"}, http.StatusBadRequest, utils.ErrCodeValidation},
		{"remote not configured", map[string]interface{}{"strategy": "remote"}, http.StatusBadGateway, utils.ErrCodeSamplerUnavailable},
		{"negative budget", map[string]interface{}{"problem": map[string]interface{}{"budget": -5, "team_size": 9}}, http.StatusBadRequest, utils.ErrCodeValidation},
		{"too many players", map[string]interface{}{"players": tooMany}, http.StatusBadRequest, utils.ErrCodeValidation},
		{"reads above limit", map[string]interface{}{"params": map[string]interface{}{"num_reads": 1001}}, http.StatusBadRequest, utils.ErrCodeValidation},
		{"sweeps above limit", map[string]interface{}{"params": map[string]interface{}{"sweeps": 501}}, http.StatusBadRequest, utils.ErrCodeValidation},
		{"negative reads", map[string]interface{}{"params": map[string]interface{}{"num_reads": -1}}, http.StatusBadRequest, utils.ErrCodeValidation},
		{"infeasible ilp", map[string]interface{}{
			"strategy": "ilp",
			"problem": map[string]interface{}{
				"budget":                40000,
				"team_size":             9,
				"position_requirements": map[string]int{"QB": 1, "RB": 2, "WR": 3, "TE": 2, "DST": 1},
			},
		}, http.StatusUnprocessableEntity, utils.ErrCodeInfeasible},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			code, env := s.do(http.MethodPost, "/api/v1/optimize", tt.body)
			s.Equal(tt.status, code)
			s.False(env.Success)
			s.Require().NotNil(env.Error)
			s.Equal(tt.code, env.Error.Code)
		})
	}
}

func (s *HandlersTestSuite) TestSample() {
	body := map[string]interface{}{
		"qubo": map[string]interface{}{
			"size": 2,
			"terms": []map[string]interface{}{
				{"i": 0, "j": 0, "value": -1},
				{"i": 1, "j": 1, "value": 2},
				{"i": 0, "j": 1, "value": 0},
			},
		},
		"sampler": "exact",
		"params":  map[string]interface{}{"num_reads": 1},
	}

	code, env := s.do(http.MethodPost, "/api/v1/sample", body)
	s.Require().Equal(http.StatusOK, code)

	var set sampler.SampleSet
	s.Require().NoError(json.Unmarshal(env.Data, &set))
	s.Require().Len(set.Samples, 1)
	s.Equal([]int{1, 0}, set.Samples[0].Assignment)
	s.Equal(-1.0, set.Samples[0].Energy)

	code, _ = s.do(http.MethodPost, "/api/v1/sample", map[string]interface{}{"sampler": "exact"})
	s.Equal(http.StatusBadRequest, code)

	body["sampler"] = "ilp"
	code, _ = s.do(http.MethodPost, "/api/v1/sample", body)
	s.Equal(http.StatusBadRequest, code)
}

func (s *HandlersTestSuite) TestSample_RejectsOversizedRequests() {
	tests := []struct {
		name   string
		qubo   map[string]interface{}
		params map[string]interface{}
	}{
		{"size above player limit", map[string]interface{}{"size": 4000, "terms": []interface{}{}}, nil},
		{"negative size", map[string]interface{}{"size": -3}, nil},
		{"term out of range", map[string]interface{}{"size": 2, "terms": []map[string]interface{}{{"i": 0, "j": 2, "value": 1}}}, nil},
		{"reads above limit", map[string]interface{}{"size": 2}, map[string]interface{}{"num_reads": 5000}},
		{"sweeps above limit", map[string]interface{}{"size": 2}, map[string]interface{}{"sweeps": 100000}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			body := map[string]interface{}{"qubo": tt.qubo, "sampler": "anneal"}
			if tt.params != nil {
				body["params"] = tt.params
			}
			code, env := s.do(http.MethodPost, "/api/v1/sample", body)
			s.Equal(http.StatusBadRequest, code)
			s.Require().NotNil(env.Error)
			s.Equal(utils.ErrCodeValidation, env.Error.Code)
		})
	}
}

func (s *HandlersTestSuite) TestRuns_Errors() {
	code, env := s.do(http.MethodGet, "/api/v1/runs/not-a-uuid", nil)
	s.Equal(http.StatusBadRequest, code)
	s.Equal(utils.ErrCodeValidation, env.Error.Code)

	code, env = s.do(http.MethodGet, "/api/v1/runs/"+uuid.New().String(), nil)
	s.Equal(http.StatusNotFound, code)
	s.Equal(utils.ErrCodeNotFound, env.Error.Code)

	code, _ = s.do(http.MethodGet, "/api/v1/runs?limit=-1", nil)
	s.Equal(http.StatusBadRequest, code)
}

func (s *HandlersTestSuite) TestCacheStatus() {
	code, env := s.do(http.MethodGet, "/api/v1/cache/status", nil)
	s.Require().Equal(http.StatusOK, code)

	var status map[string]interface{}
	s.Require().NoError(json.Unmarshal(env.Data, &status))
	s.Equal(true, status["configured"])
	s.Equal(true, status["connected"])
}

func (s *HandlersTestSuite) TestClearCache() {
	code, _, _ := s.optimize(map[string]interface{}{"strategy": "ilp"})
	s.Require().Equal(http.StatusOK, code)
	s.Require().NotEmpty(s.mr.Keys())

	code, env := s.do(http.MethodDelete, "/api/v1/cache", nil)
	s.Require().Equal(http.StatusOK, code)

	var body map[string]interface{}
	s.Require().NoError(json.Unmarshal(env.Data, &body))
	s.Equal(true, body["flushed"])
	s.Empty(s.mr.Keys())
}

func (s *HandlersTestSuite) TestHealth() {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusOK, w.Code)

	var status types.HealthStatus
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &status))
	s.Equal("ok", status.Status)
	s.Equal("ok", status.Checks["redis"])
	s.Equal("ok", status.Checks["database"])
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

func TestHealthHandler_Failures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	failing := func(ctx context.Context) error { return errors.New("down") }

	tests := []struct {
		name       string
		critical   bool
		path       string
		wantCode   int
		wantStatus string
	}{
		{"degraded", false, "/health", http.StatusOK, "degraded"},
		{"unhealthy", true, "/health", http.StatusServiceUnavailable, "unhealthy"},
		{"ready despite optional failure", false, "/ready", http.StatusOK, "ready"},
		{"not ready", true, "/ready", http.StatusServiceUnavailable, "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewHealthHandler(logger.NewNop(), handlers.HealthCheck{Name: "redis", Critical: tt.critical, Check: failing})
			router := gin.New()
			router.GET("/health", h.GetHealth)
			router.GET("/ready", h.GetReady)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			var status types.HealthStatus
			if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
				t.Fatal(err)
			}
			if w.Code != tt.wantCode || status.Status != tt.wantStatus {
				t.Fatalf("got %d %q, want %d %q", w.Code, status.Status, tt.wantCode, tt.wantStatus)
			}
			if status.Checks["redis"] != "failed: down" {
				t.Fatalf("unexpected check detail %q", status.Checks["redis"])
			}
		})
	}
}
