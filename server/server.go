package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatrelay/db"
	"chatrelay/protocol"
)

type Server struct {
	db       *db.DB
	config   *ServerConfig
	registry *SessionRegistry
	log      *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	FileReadTimeout time.Duration
}

func New(database *db.DB, config *ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if config.FileReadTimeout == 0 {
		config.FileReadTimeout = time.Minute
	}

	return &Server{
		db:       database,
		config:   config,
		registry: NewSessionRegistry(),
		log:      logger,
	}
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.Port))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("relay server started", "port", s.config.Port)

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			s.log.Error("accept failed", "error", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection is the per-connection dispatcher: it owns one session,
// reads command lines and routes them, and tears the session down on
// disconnect.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	sess := newSession(conn, "", "", s.config.WriteTimeout)
	s.registry.Track(sess)
	connectionsOpen.Inc()

	s.log.Info("client connected", "remote", conn.RemoteAddr().String(), "session", sess.ID)

	defer func() {
		wentOffline := s.registry.Unregister(sess)
		connectionsOpen.Dec()
		if wentOffline {
			sessionsAuthenticated.Dec()
			if err := s.db.SetLoggedIn(sess.Username, false); err != nil {
				s.log.Error("failed to mark user offline", "user", sess.Username, "error", err)
			}
			s.log.Info("client disconnected", "user", sess.Username, "remote", conn.RemoteAddr().String())
		} else {
			s.log.Info("client disconnected", "remote", conn.RemoteAddr().String())
		}
	}()

	// Resolved after the session joins the broadcast set: a slow reverse
	// lookup must not hide the connection from routing.
	sess.IP, sess.Hostname = resolveOrigin(conn.RemoteAddr())

	reader := bufio.NewReader(conn)

	// Carries data already read when a deadline fires mid-line, so an idle
	// pause never splits one command into two garbled ones.
	var pending strings.Builder

	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		chunk, err := reader.ReadString('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				pending.WriteString(chunk)
				continue
			}
			if err != io.EOF && !strings.Contains(err.Error(), "use of closed network connection") {
				s.log.Warn("read failed", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return
		}

		line := pending.String() + chunk
		pending.Reset()

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		cmd := protocol.Parse(line)
		if cmd == nil {
			continue
		}

		// Never log credential-bearing lines.
		if cmd.Name != "login" && cmd.Name != "register" {
			s.log.Debug("received", "remote", conn.RemoteAddr().String(), "line", line)
		}

		s.dispatch(sess, cmd, reader)
	}
}

func (s *Server) dispatch(sess *Session, cmd *protocol.Command, reader *bufio.Reader) {
	switch cmd.Name {
	case "login":
		s.handleLogin(sess, cmd.Args)
	case "register":
		s.handleRegister(sess, cmd.Args)
	case "send":
		s.handleSend(sess, cmd.Args)
	case "createTask":
		s.handleCreateTask(sess, cmd.Args)
	case "viewTasks":
		s.handleViewTasks(sess, cmd.Args)
	case "updateTask":
		s.handleUpdateTask(sess, cmd.Args)
	case "deleteTask":
		s.handleDeleteTask(sess, cmd.Args)
	case "viewDirectMessages":
		s.handleViewDirectMessages(sess)
	case "viewChannelMessages":
		s.handleViewChannelMessages(sess, cmd.Args)
	case "sendFile":
		s.handleSendFile(sess, cmd.Args, reader)
	default:
		s.replyError(sess, protocol.Protocolf(cmd.Name,
			"Unknown command: '"+cmd.Name+"'. Available: "+strings.Join(protocol.Commands, ", ")))
	}
}

// reply pushes a response line to the session that issued the command.
func (s *Server) reply(sess *Session, line string) {
	if err := sess.Push(line); err != nil {
		s.log.Warn("write failed", "session", sess.ID, "error", err)
	}
}

func (s *Server) replyError(sess *Session, perr *protocol.Error) {
	commandErrors.WithLabelValues(string(perr.Kind)).Inc()
	s.reply(sess, perr.Line())
}

// GetStats returns server statistics as a formatted string for the control
// socket.
func (s *Server) GetStats() string {
	users := s.registry.OnlineUsers()
	return "connections=" + strconv.Itoa(s.registry.CountConnections()) +
		",users=" + strings.Join(users, ";")
}

// Shutdown closes the listener and every live connection. Authenticated
// users are marked offline in the store.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	for _, sess := range s.registry.AllHandles() {
		sess.conn.Close()
	}
}

// originResolveTimeout bounds the reverse lookup; past it the raw address
// stands in for the hostname.
const originResolveTimeout = time.Second

// resolveOrigin extracts the client IP and its reverse-resolved hostname.
// Both are recorded at registration and re-checked at login.
func resolveOrigin(addr net.Addr) (ip, hostname string) {
	ip = addr.String()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	hostname = ip
	ctx, cancel := context.WithTimeout(context.Background(), originResolveTimeout)
	defer cancel()
	if names, err := net.DefaultResolver.LookupAddr(ctx, ip); err == nil && len(names) > 0 {
		hostname = strings.TrimSuffix(names[0], ".")
	}
	return ip, hostname
}
