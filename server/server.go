package server

import (
	"encoding/json"
	"net/http"
	"net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zaledjen/gameserver/api"
	"github.com/zaledjen/gameserver/broadcast"
	"github.com/zaledjen/gameserver/config"
	"github.com/zaledjen/gameserver/logger"
	"github.com/zaledjen/gameserver/models"
	"github.com/zaledjen/gameserver/monitor"
	"github.com/zaledjen/gameserver/network"
	"github.com/zaledjen/gameserver/persistence"
	"github.com/zaledjen/gameserver/room"
	gameserver_rpc "github.com/zaledjen/gameserver/rpc"
	"github.com/zaledjen/gameserver/services"
	"github.com/zaledjen/gameserver/session"
	"github.com/zaledjen/gameserver/timer"

	"github.com/gin-gonic/gin"
)

// Directory is the slice of the user service the gateway consumes: player
// identity for socket joins, stat bumps, and power ownership checks.
type Directory interface {
	ResolveByID(userID string) (*models.PlayerSnapshot, error)
	IncrementStat(userID, stat string, delta int) error
	IsOwned(userID, itemID string) (bool, error)
}

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	userService    *services.UserService
	directory      Directory
	broadcaster    *broadcast.RoomBroadcaster
	rpcServer      *gameserver_rpc.Server
	monitor        *monitor.Monitor
	timers         *timer.Manager
	writer         *persistence.AsyncWriter
	db             persistence.Database
	shutdownChan   chan struct{}
}

// NewGameServer wires the whole machine: sessions, broadcaster, async
// snapshot writer, room registry, user directory, RPC and metrics.
func NewGameServer(cfg *config.Config, db persistence.Database, roomStore persistence.RoomStore) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		sessionManager: session.NewManager(),
		db:             db,
		monitor:        monitor.NewMonitor("zaledjen"),
		timers:         timer.NewManager(),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	s.broadcaster = broadcast.NewRoomBroadcaster(s.sessionManager)
	s.broadcaster.SetSendHook(s.monitor.IncBroadcastsSent)

	s.writer = persistence.NewAsyncWriter(roomStore)

	s.roomManager = room.NewManager(room.ManagerConfig{
		DefaultMaxPlayers: cfg.Game.DefaultMaxPlayers,
		CodeLength:        cfg.Game.RoomCodeLength,
		IdleTimeout:       cfg.Game.RoomIdleTimeout,
		GameDuration:      cfg.Game.GameDuration,
		FreezeDuration:    cfg.Game.FreezeDuration,
		PowersEnabled:     cfg.Game.PowersEnabled,
	}, s.broadcaster, s.writer, s.timers)

	s.userService = services.NewUserService(db, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	s.directory = s.userService

	rpcServer, err := gameserver_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	statsService := gameserver_rpc.NewStatsService(s.userService)
	rpc.Register(statsService)

	return s
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()
	s.monitor.StartServer(s.cfg.Server.MetricsAddress)

	handler := api.NewHandler(s.userService, s.roomManager, s.db, s.broadcaster)
	router := api.NewRouter(handler, func(c *gin.Context) {
		s.handleWebSocket(c.Writer, c.Request)
	}, s.cfg.Server.Development)

	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	return http.ListenAndServe(s.cfg.Server.HTTPAddress, router)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.rpcServer.Stop()
	s.roomManager.Stop()
	s.timers.Stop()
	s.writer.Stop()
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.cleanupSession(sess)
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			env, err := wsConn.ReadEnvelope()
			if err != nil {
				return
			}
			start := time.Now()
			s.handleEnvelope(sess, env)
			s.monitor.ObserveEventLatency(time.Since(start))
		}
	}
}

// cleanupSession tears down a connection's mapping. A session that never
// joined a room is a no-op here — disconnects and explicit leaves race and
// both must be safe.
func (s *GameServer) cleanupSession(sess *session.Session) {
	playerID, roomCode := sess.Mapping()
	if roomCode != "" && playerID != "" {
		s.roomManager.RemovePlayer(roomCode, playerID)
	}
	sess.Unbind()
	s.sessionManager.Remove(sess.GetID())
	s.monitor.DecOnlinePlayers()
	s.monitor.SetActiveRooms(s.roomManager.Count())
}

// eventPayload is the superset of fields carried by inbound events.
type eventPayload struct {
	RoomCode       string  `json:"room_code"`
	PlayerID       string  `json:"player_id"`
	IsReady        *bool   `json:"is_ready"`
	FrozenPlayerID string  `json:"frozen_player_id"`
	MrazID         string  `json:"mraz_id"`
	UnfreezerID    string  `json:"unfreezer_id"`
	PowerID        string  `json:"power_id"`
	Player1ID      string  `json:"player1_id"`
	Player2ID      string  `json:"player2_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
}

func (s *GameServer) handleEnvelope(sess *session.Session, env *network.Envelope) {
	s.monitor.IncEventsReceived()

	var p eventPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &p); err != nil {
			logger.Log.Warnf("Session %s sent malformed %s payload, dropping", sess.GetID(), env.Event)
			s.monitor.IncEventsDropped()
			return
		}
	}

	switch env.Event {
	case network.EventJoinGame:
		s.handleJoinGame(sess, &p)
	case network.EventLeaveGame:
		s.handleLeaveGame(sess, &p)
	case network.EventPlayerReady:
		s.handlePlayerReady(sess, &p)
	case network.EventStartGame:
		s.handleStartGame(sess, &p)
	case network.EventFreezePlayer:
		s.handleFreezePlayer(sess, &p)
	case network.EventUnfreezePlayer:
		s.handleUnfreezePlayer(sess, &p)
	case network.EventUsePower:
		s.handleUsePower(sess, &p)
	case network.EventProximityDetected:
		s.handleProximity(sess, &p)
	case network.EventUpdateLocation:
		s.handleUpdateLocation(sess, &p)
	default:
		logger.Log.Infof("Unknown event type: %s", env.Event)
	}

	s.monitor.SetActiveRooms(s.roomManager.Count())
}

// drop logs and counts an event missing its required fields. Malformed
// input never crashes the gateway and never produces a broadcast.
func (s *GameServer) drop(sess *session.Session, event string) {
	logger.Log.Warnf("Session %s sent %s without required fields, dropping", sess.GetID(), event)
	s.monitor.IncEventsDropped()
}

// sendError reports a rejected event to the originating connection only.
// Room state is untouched; nothing is broadcast.
func (s *GameServer) sendError(sess *session.Session, event string, err error) {
	_ = sess.Send(network.EventError, map[string]any{
		"event":   event,
		"message": err.Error(),
	})
}

func (s *GameServer) handleJoinGame(sess *session.Session, p *eventPayload) {
	if p.RoomCode == "" || p.PlayerID == "" {
		s.drop(sess, network.EventJoinGame)
		return
	}

	r, exists := s.roomManager.GetRoom(p.RoomCode)
	if exists && r.HasPlayer(p.PlayerID) {
		// Already a member via the REST join; just bind the socket.
		if err := r.Join(models.PlayerSnapshot{ID: p.PlayerID}); err != nil {
			s.sendError(sess, network.EventJoinGame, err)
			return
		}
		sess.Bind(p.PlayerID, r.Code)
		logger.Log.Infof("Player %s joined room %s", p.PlayerID, r.Code)
		return
	}

	snapshot, err := s.directory.ResolveByID(p.PlayerID)
	if err != nil {
		s.sendError(sess, network.EventJoinGame, err)
		return
	}
	r, err = s.roomManager.JoinRoom(p.RoomCode, *snapshot)
	if err != nil {
		s.sendError(sess, network.EventJoinGame, err)
		return
	}
	sess.Bind(p.PlayerID, r.Code)
	logger.Log.Infof("Player %s joined room %s", p.PlayerID, r.Code)
}

func (s *GameServer) handleLeaveGame(sess *session.Session, p *eventPayload) {
	playerID, roomCode := p.PlayerID, p.RoomCode
	if playerID == "" || roomCode == "" {
		playerID, roomCode = sess.Mapping()
	}
	if playerID == "" || roomCode == "" {
		s.drop(sess, network.EventLeaveGame)
		return
	}

	s.roomManager.RemovePlayer(roomCode, playerID)
	sess.Unbind()
}

func (s *GameServer) handlePlayerReady(sess *session.Session, p *eventPayload) {
	if p.RoomCode == "" || p.PlayerID == "" {
		s.drop(sess, network.EventPlayerReady)
		return
	}
	r, exists := s.roomManager.GetRoom(p.RoomCode)
	if !exists {
		s.sendError(sess, network.EventPlayerReady, room.ErrRoomNotFound)
		return
	}

	ready := true
	if p.IsReady != nil {
		ready = *p.IsReady
	}
	if err := r.SetReady(p.PlayerID, ready); err != nil {
		s.sendError(sess, network.EventPlayerReady, err)
	}
}

func (s *GameServer) handleStartGame(sess *session.Session, p *eventPayload) {
	if p.RoomCode == "" {
		s.drop(sess, network.EventStartGame)
		return
	}
	r, exists := s.roomManager.GetRoom(p.RoomCode)
	if !exists {
		s.sendError(sess, network.EventStartGame, room.ErrRoomNotFound)
		return
	}

	result, err := r.StartRound()
	if err != nil {
		s.sendError(sess, network.EventStartGame, err)
		return
	}
	logger.Log.Infof("Room %s started round %d, mraz is %s", r.Code, result.RoundNumber, result.MrazID)

	// Stat bumps are CRUD side effects; failures only get logged.
	for _, id := range result.PlayerIDs {
		if err := s.directory.IncrementStat(id, "games_played", 1); err != nil {
			logger.Log.Warnf("incrementing games_played for %s: %v", id, err)
		}
	}
	if err := s.directory.IncrementStat(result.MrazID, "times_as_mraz", 1); err != nil {
		logger.Log.Warnf("incrementing times_as_mraz for %s: %v", result.MrazID, err)
	}
}

func (s *GameServer) handleFreezePlayer(sess *session.Session, p *eventPayload) {
	if p.RoomCode == "" || p.FrozenPlayerID == "" || p.MrazID == "" {
		s.drop(sess, network.EventFreezePlayer)
		return
	}
	r, exists := s.roomManager.GetRoom(p.RoomCode)
	if !exists {
		s.sendError(sess, network.EventFreezePlayer, room.ErrRoomNotFound)
		return
	}

	result, err := r.Freeze(p.FrozenPlayerID, p.MrazID)
	if err != nil {
		if err == room.ErrCorruptState {
			s.roomManager.RemoveRoom(r.Code)
			return
		}
		s.sendError(sess, network.EventFreezePlayer, err)
		return
	}
	s.monitor.IncFreezeEvents()

	if err := s.directory.IncrementStat(p.FrozenPlayerID, "times_frozen", 1); err != nil {
		logger.Log.Warnf("incrementing times_frozen for %s: %v", p.FrozenPlayerID, err)
	}

	if result.GameOver {
		logger.Log.Infof("Room %s round over, winner %s", r.Code, result.Winner)
		s.monitor.IncRoundsFinished()
		if err := s.directory.IncrementStat(result.Winner, "games_won", 1); err != nil {
			logger.Log.Warnf("incrementing games_won for %s: %v", result.Winner, err)
		}
	}
}

func (s *GameServer) handleUnfreezePlayer(sess *session.Session, p *eventPayload) {
	if p.RoomCode == "" || p.FrozenPlayerID == "" || p.UnfreezerID == "" {
		s.drop(sess, network.EventUnfreezePlayer)
		return
	}
	r, exists := s.roomManager.GetRoom(p.RoomCode)
	if !exists {
		s.sendError(sess, network.EventUnfreezePlayer, room.ErrRoomNotFound)
		return
	}

	if err := r.Unfreeze(p.FrozenPlayerID, p.UnfreezerID); err != nil {
		if err == room.ErrCorruptState {
			s.roomManager.RemoveRoom(r.Code)
			return
		}
		s.sendError(sess, network.EventUnfreezePlayer, err)
		return
	}

	if err := s.directory.IncrementStat(p.UnfreezerID, "times_unfrozen_others", 1); err != nil {
		logger.Log.Warnf("incrementing times_unfrozen_others for %s: %v", p.UnfreezerID, err)
	}
}

func (s *GameServer) handleUsePower(sess *session.Session, p *eventPayload) {
	if p.RoomCode == "" || p.PlayerID == "" || p.PowerID == "" {
		s.drop(sess, network.EventUsePower)
		return
	}
	r, exists := s.roomManager.GetRoom(p.RoomCode)
	if !exists {
		s.sendError(sess, network.EventUsePower, room.ErrRoomNotFound)
		return
	}
	if !r.Settings.PowersEnabled {
		s.sendError(sess, network.EventUsePower, room.ErrInvalidTransition)
		return
	}

	owned, err := s.directory.IsOwned(p.PlayerID, p.PowerID)
	if err != nil {
		logger.Log.Warnf("ownership check for %s/%s failed: %v", p.PlayerID, p.PowerID, err)
		return
	}
	if !owned {
		s.sendError(sess, network.EventUsePower, services.ErrNotOwned)
		return
	}

	r.Relay(network.EventPowerUsed, map[string]any{
		"player_id": p.PlayerID,
		"power_id":  p.PowerID,
	})
}

func (s *GameServer) handleProximity(sess *session.Session, p *eventPayload) {
	if p.RoomCode == "" || p.Player1ID == "" || p.Player2ID == "" {
		s.drop(sess, network.EventProximityDetected)
		return
	}
	r, exists := s.roomManager.GetRoom(p.RoomCode)
	if !exists {
		s.sendError(sess, network.EventProximityDetected, room.ErrRoomNotFound)
		return
	}

	r.Relay(network.EventProximityEvent, map[string]any{
		"player1_id": p.Player1ID,
		"player2_id": p.Player2ID,
	})
}

func (s *GameServer) handleUpdateLocation(sess *session.Session, p *eventPayload) {
	if p.RoomCode == "" || p.PlayerID == "" {
		s.drop(sess, network.EventUpdateLocation)
		return
	}
	r, exists := s.roomManager.GetRoom(p.RoomCode)
	if !exists {
		s.sendError(sess, network.EventUpdateLocation, room.ErrRoomNotFound)
		return
	}

	r.Relay(network.EventLocationUpdate, map[string]any{
		"player_id": p.PlayerID,
		"latitude":  p.Latitude,
		"longitude": p.Longitude,
	})
}
