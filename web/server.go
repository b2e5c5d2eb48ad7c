package web

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"team-presence/auth"
	"team-presence/config"
	"team-presence/database"
	"team-presence/pkg/common"
	"team-presence/pkg/query"
	"team-presence/services"
)

// MatchService 比赛仓库
type MatchService interface {
	List(ctx context.Context, filter services.MatchFilter, page query.Page, order services.MatchOrder) (*services.MatchList, error)
	GetByID(ctx context.Context, id uuid.UUID) (*database.Match, error)
	Create(ctx context.Context, in services.MatchInput) (*database.Match, error)
	Update(ctx context.Context, id uuid.UUID, patch services.MatchPatch) (*database.Match, error)
	Delete(ctx context.Context, id uuid.UUID) (*database.Match, error)
	TogglePresenceWindow(ctx context.Context, id uuid.UUID) (*database.Match, error)
}

// PresenceService 出勤仓库
type PresenceService interface {
	Upsert(ctx context.Context, matchID uuid.UUID, inputs []services.PresenceInput) error
	SubmitOwn(ctx context.Context, matchID, userID uuid.UUID, status string) error
	Roster(ctx context.Context, matchID uuid.UUID) (*database.Roster, error)
}

// UserService 用户仓库
type UserService interface {
	Create(ctx context.Context, in services.UserInput) (*database.User, error)
	GetByEmail(ctx context.Context, email string) (*database.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*database.User, error)
	List(ctx context.Context, role *string) ([]database.User, error)
	Update(ctx context.Context, id uuid.UUID, patch services.UserPatch) (*database.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Deps 服务器依赖
type Deps struct {
	Matches   MatchService
	Presences PresenceService
	Users     UserService
	Tokens    *auth.TokenIssuer
	Events    services.EventPublisher
	Health    *HealthChecker
	Hub       *Hub
	Logger    common.Logger
}

type Server struct {
	config     *config.Config
	matches    MatchService
	presences  PresenceService
	users      UserService
	tokens     *auth.TokenIssuer
	events     services.EventPublisher
	health     *HealthChecker
	wsHub      *Hub
	logger     common.Logger
	location   *time.Location
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	events := deps.Events
	if events == nil {
		events = services.NopPublisher{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = common.NewLogger("HTTP")
	}

	s := &Server{
		config:    cfg,
		matches:   deps.Matches,
		presences: deps.Presences,
		users:     deps.Users,
		tokens:    deps.Tokens,
		events:    events,
		health:    deps.Health,
		wsHub:     deps.Hub,
		logger:    logger,
		location:  loc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	return s
}

// Handler 构建路由和中间件
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	// API路由
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/auth/register", s.handleRegister).Methods("POST")
	api.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/auth/me", s.authenticate(s.handleMe)).Methods("GET")

	api.HandleFunc("/users", s.managers(s.handleListUsers)).Methods("GET")
	api.HandleFunc("/users/{id}", s.admins(s.handleUpdateUser)).Methods("PATCH")
	api.HandleFunc("/users/{id}", s.admins(s.handleDeleteUser)).Methods("DELETE")

	api.HandleFunc("/matches", s.handleListMatches).Methods("GET")
	api.HandleFunc("/matches", s.managers(s.handleCreateMatch)).Methods("POST")
	api.HandleFunc("/matches.ics", s.handleCalendar).Methods("GET")
	api.HandleFunc("/matches/import", s.managers(s.handleImportMatches)).Methods("POST")
	api.HandleFunc("/matches/{id}", s.handleGetMatch).Methods("GET")
	api.HandleFunc("/matches/{id}", s.managers(s.handleUpdateMatch)).Methods("PUT")
	api.HandleFunc("/matches/{id}", s.managers(s.handleDeleteMatch)).Methods("DELETE")
	api.HandleFunc("/matches/{id}/toggle-presence", s.managers(s.handleTogglePresence)).Methods("PATCH")
	api.HandleFunc("/matches/{id}/presences", s.managers(s.handleUpsertPresences)).Methods("POST")
	api.HandleFunc("/matches/{id}/presences/me", s.authenticate(s.handleSubmitOwnPresence)).Methods("PUT")
	api.HandleFunc("/matches/{id}/presences", s.authenticate(s.handleGetPresences)).Methods("GET")

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, common.NewAppError(common.KindNotFound, "route not found", common.ErrNotFound))
	})

	// WebSocket路由
	if s.wsHub != nil {
		router.HandleFunc("/ws", s.handleWebSocket)
	}

	// CORS配置
	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return s.recoverPanics(s.logRequests(c.Handler(router)))
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Listening on :%s", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Stop 停止接收新请求, 等待进行中的请求结束
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// checkOrigin 按 CORS 白名单检查 WebSocket 来源
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// publish 提交后尽力发布事件
func (s *Server) publish(r *http.Request, eventType string, matchID uuid.UUID, data interface{}) {
	services.Notify(r.Context(), s.events, s.logger, services.NewEvent(eventType, matchID, data))
}

// pathID 解析路径中的 UUID, 格式错误视为不存在
func pathID(r *http.Request, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, common.NotFound(what)
	}
	return id, nil
}
