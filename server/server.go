package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/minaorangina/uno/protocol"
	"github.com/minaorangina/uno/store"
	"go.uber.org/zap"
)

const gameIDLength = 6

type NewGameRes struct {
	GameID string `json:"gameId"`
}

type ListGamesRes struct {
	Games []string `json:"games"`
}

type HealthRes struct {
	Status string `json:"status"`
	Games  int    `json:"games"`
}

type ServerOpts struct {
	Addr    string
	Store   store.GameStore
	Handler MessageHandler
	// AllowedOrigins lists the origins browsers may connect from. "*" allows any.
	AllowedOrigins []string
	SendBuffer     int
	Logger         *zap.Logger
}

// GameServer is a game server
type GameServer struct {
	http.Server

	store      store.GameStore
	handler    MessageHandler
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *zap.Logger

	mu   sync.Mutex
	rand *rand.Rand

	quit      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a new GameServer
func NewServer(opts ServerOpts) *GameServer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &GameServer{
		store:      opts.Store,
		handler:    opts.Handler,
		sendBuffer: opts.SendBuffer,
		logger:     opts.Logger,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
		quit:       make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}

	router := chi.NewRouter()
	router.Get("/healthz", s.HandleHealthz)
	router.Get("/games", s.HandleListGames)
	router.Post("/games", s.HandleNewGame)
	router.Get("/games/{gameID}", s.HandleFindGame)
	router.Get("/ws", s.HandleWS)

	cors := handlers.CORS(
		handlers.AllowedOrigins(opts.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	accessLog := zap.NewStdLog(opts.Logger.Named("access")).Writer()

	s.Addr = opts.Addr
	s.Handler = handlers.CombinedLoggingHandler(accessLog, cors(router))

	return s
}

// ServeHTTP serves http
func (s *GameServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler.ServeHTTP(w, r)
}

// Shutdown stops accepting requests and closes every websocket connection
func (s *GameServer) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	return s.Server.Shutdown(ctx)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// NewGameID generates a short code that is easy to share
func (s *GameServer) NewGameID() string {
	letters := []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ")

	s.mu.Lock()
	defer s.mu.Unlock()

	code := make([]byte, gameIDLength)
	for i := range code {
		code[i] = letters[s.rand.Intn(len(letters))]
	}
	return string(code)
}

func unknownGameIDMsg(unknownID string) string {
	return fmt.Sprintf("unknown game ID '%s'", unknownID)
}

func (s *GameServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	bytes, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encoding response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(bytes)
}

func (s *GameServer) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthRes{Status: "ok", Games: s.store.Len()})
}

func (s *GameServer) HandleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ListGamesRes{Games: s.store.Snapshot()})
}

// HandleNewGame reserves a fresh game ID. The game itself is created empty
// and waits for joins over the websocket.
func (s *GameServer) HandleNewGame(w http.ResponseWriter, r *http.Request) {
	gameID := s.NewGameID()
	for {
		if _, taken := s.store.Find(gameID); !taken {
			break
		}
		gameID = s.NewGameID()
	}

	if _, err := s.store.Get(gameID); err != nil {
		s.logger.Error("creating game", zap.String("game_id", gameID), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.logger.Info("game reserved", zap.String("game_id", gameID))
	s.writeJSON(w, http.StatusCreated, NewGameRes{GameID: gameID})
}

// HandleFindGame returns the public view of a game
func (s *GameServer) HandleFindGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	g, ok := s.store.Find(gameID)
	if !ok {
		http.Error(w, unknownGameIDMsg(gameID), http.StatusNotFound)
		return
	}

	g.Lock()
	closed := g.Closed()
	var snapshot protocol.UpdatePayload
	if !closed {
		snapshot = g.BuildSnapshot()
	}
	g.Unlock()

	if closed {
		http.Error(w, unknownGameIDMsg(gameID), http.StatusNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *GameServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewWSConn(ws, WSConnOpts{
		SendBuffer: s.sendBuffer,
		Quit:       s.quit,
		Logger:     s.logger,
	})

	s.logger.Info("connection opened", zap.String("conn_id", conn.ID()), zap.String("remote_addr", r.RemoteAddr))
	conn.Serve(s.handler)
	s.logger.Info("connection closed", zap.String("conn_id", conn.ID()))
}
