package rpc

import (
	"net"
	"net/rpc"

	"github.com/zaledjen/gameserver/logger"
	"github.com/zaledjen/gameserver/models"
	"github.com/zaledjen/gameserver/services"
)

// Server manages the RPC listener. It carries the internal admin surface:
// ops tooling queries player stats and leaderboards without going through
// the public HTTP API.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// StatsService is the struct that exposes RPC methods.
type StatsService struct {
	users *services.UserService
}

// NewStatsService creates a new StatsService.
func NewStatsService(users *services.UserService) *StatsService {
	return &StatsService{users: users}
}

// Arguments and replies follow the net/rpc signature rules: exported
// types, reply passed as a pointer, error return.

type GetUserStatsArgs struct {
	UserID string
}

type GetUserStatsReply struct {
	Username string
	Stats    map[string]int
}

func (ss *StatsService) GetUserStats(args *GetUserStatsArgs, reply *GetUserStatsReply) error {
	user, err := ss.users.GetUser(args.UserID)
	if err != nil {
		return err
	}
	reply.Username = user.Username
	reply.Stats = user.Stats
	return nil
}

type LeaderboardArgs struct {
	Category string
	Limit    int
}

type LeaderboardReply struct {
	Entries []models.LeaderboardEntry
}

func (ss *StatsService) GetLeaderboard(args *LeaderboardArgs, reply *LeaderboardReply) error {
	entries, err := ss.users.Leaderboard(args.Category, args.Limit)
	if err != nil {
		return err
	}
	reply.Entries = entries
	return nil
}
