package server

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"chatrelay/db"
	"chatrelay/protocol"
)

const maxBodyLength = 2000

func (s *Server) handleLogin(sess *Session, args []string) {
	if len(args) < 2 {
		s.replyError(sess, protocol.Protocolf("login", "usage: login <username> <password>"))
		return
	}

	username, password := args[0], args[1]

	// Credentials and origin are checked on every attempt, including on an
	// already authenticated connection. A failed attempt leaves the current
	// binding untouched.
	valid, err := s.db.AuthenticateUser(username, password, sess.IP, sess.Hostname)
	if err != nil {
		s.log.Error("login failed", "user", username, "error", err)
		commandErrors.WithLabelValues(string(protocol.KindStorage)).Inc()
		s.reply(sess, "LOGIN ERROR")
		return
	}

	if !valid {
		commandErrors.WithLabelValues(string(protocol.KindAuth)).Inc()
		s.reply(sess, "LOGIN FAILED")
		return
	}

	// A successful login as a different user rebinds the connection: the old
	// username goes offline unless another session still holds it.
	if sess.Username != "" && sess.Username != username {
		previous := sess.Username
		if s.registry.Unbind(sess) {
			sessionsAuthenticated.Dec()
			if err := s.db.SetLoggedIn(previous, false); err != nil {
				s.log.Error("failed to mark user offline", "user", previous, "error", err)
			}
		}
	}

	sess.Username = username
	replaced := s.registry.Register(username, sess)
	if !replaced {
		sessionsAuthenticated.Inc()
	}

	s.reply(sess, "LOGIN OK")
	s.log.Info("user logged in", "user", username, "session", sess.ID, "replaced", replaced)

	if err := s.db.SetLoggedIn(username, true); err != nil {
		s.log.Error("failed to mark user online", "user", username, "error", err)
	}
}

func (s *Server) handleRegister(sess *Session, args []string) {
	if len(args) < 2 {
		s.replyError(sess, protocol.Protocolf("register", "usage: register <username> <password>"))
		return
	}

	username, password := args[0], args[1]

	// Registration records the origin; login later requires the same one.
	// It does not authenticate the session: the client must still login.
	// Uniqueness rides on the store's constraint, so two concurrent attempts
	// at the same username both get the duplicate response, not a race.
	if err := s.db.CreateUser(username, password, sess.IP, sess.Hostname); err != nil {
		if errors.Is(err, db.ErrDuplicateUser) {
			commandErrors.WithLabelValues(string(protocol.KindValidation)).Inc()
			s.reply(sess, "REGISTER FAILED: username already taken")
			return
		}
		s.log.Error("register failed", "user", username, "error", err)
		commandErrors.WithLabelValues(string(protocol.KindStorage)).Inc()
		s.reply(sess, "REGISTER FAILED: internal error")
		return
	}

	s.reply(sess, "REGISTER OK")
	s.log.Info("user registered", "user", username, "origin", sess.IP)
}

// handleSend routes one message: targets starting with '#' broadcast to a
// channel, targets starting with '@' go to a single user.
func (s *Server) handleSend(sess *Session, args []string) {
	if len(args) < 2 {
		s.replyError(sess, protocol.Protocolf("send",
			"usage: send #<channel> <message> or send @<username> <message>"))
		return
	}

	if sess.Username == "" {
		s.replyError(sess, protocol.Authf("send", "You must be logged in to send messages."))
		return
	}

	target := args[0]
	body := strings.TrimSpace(protocol.JoinRest(args, 1))

	if body == "" {
		s.replyError(sess, protocol.Validationf("send", "Message content cannot be empty."))
		return
	}
	if utf8.RuneCountInString(body) > maxBodyLength {
		s.replyError(sess, protocol.Validationf("send",
			"Message too long. Maximum length is 2000 characters."))
		return
	}

	switch {
	case strings.HasPrefix(target, "#"):
		channel := target[1:]
		if channel == "" {
			s.replyError(sess, protocol.Validationf("send", "Channel name cannot be empty."))
			return
		}
		s.routeChannelMessage(sess, channel, body)

	case strings.HasPrefix(target, "@"):
		receiver := target[1:]
		if receiver == "" {
			s.replyError(sess, protocol.Validationf("send", "Username cannot be empty."))
			return
		}
		s.routeDirectMessage(sess, receiver, body)

	default:
		s.replyError(sess, protocol.Validationf("send",
			"Target must start with # (channel) or @ (username)."))
		s.reply(sess, "Example: send #general Hello or send @alice Hello")
	}
}

// routeChannelMessage persists the message, then broadcasts to every
// connected session. Channels have no membership: the broadcast reaches all
// handles, authenticated or not.
func (s *Server) routeChannelMessage(sess *Session, channel, body string) {
	if err := s.db.SaveChannelMessage(sess.Username, channel, body, time.Now().UTC()); err != nil {
		s.log.Error("channel message save failed", "channel", channel, "error", err)
		s.replyError(sess, protocol.Storagef("send", "Failed to save message to database."))
		return
	}

	line := protocol.FormatChannelPush(channel, body)
	for _, handle := range s.registry.AllHandles() {
		if err := handle.Push(line); err != nil {
			s.log.Warn("broadcast delivery failed", "session", handle.ID, "error", err)
		}
	}

	messagesRouted.WithLabelValues("channel").Inc()
	s.reply(sess, "MESSAGE SENT")
}

// routeDirectMessage persists the message, then pushes it to the receiver if
// online. Offline messages stay retrievable via viewDirectMessages; there is
// no push-on-reconnect.
func (s *Server) routeDirectMessage(sess *Session, receiver, body string) {
	if err := s.db.SaveDirectMessage(sess.Username, receiver, body, time.Now().UTC()); err != nil {
		s.log.Error("direct message save failed", "receiver", receiver, "error", err)
		s.replyError(sess, protocol.Storagef("send", "Failed to save message to database."))
		return
	}

	messagesRouted.WithLabelValues("direct").Inc()

	if handle, ok := s.registry.Lookup(receiver); ok {
		if err := handle.Push(protocol.FormatDirectPush(sess.Username, body)); err != nil {
			// Persisted already; delivery is best-effort.
			s.log.Warn("direct delivery failed", "receiver", receiver, "error", err)
		}
		s.reply(sess, "MESSAGE SENT")
		return
	}

	s.reply(sess, "MESSAGE SENT (User "+receiver+" is offline.)")
}

func (s *Server) handleViewDirectMessages(sess *Session) {
	if sess.Username == "" {
		s.replyError(sess, protocol.Authf("viewDirectMessages", "You must be logged in."))
		return
	}

	messages, err := s.db.GetDirectMessages(sess.Username)
	if err != nil {
		s.log.Error("direct message query failed", "user", sess.Username, "error", err)
		s.replyError(sess, protocol.Storagef("viewDirectMessages",
			"Failed to retrieve direct messages."))
		return
	}

	s.reply(sess, "=== DIRECT MESSAGES ===")
	for _, m := range messages {
		ts := m.Timestamp.Format(time.RFC3339)
		if m.Sender == sess.Username {
			s.reply(sess, "To "+m.Receiver+" ("+ts+"): "+m.Body)
		} else {
			s.reply(sess, "From "+m.Sender+" ("+ts+"): "+m.Body)
		}
	}
	if len(messages) == 0 {
		s.reply(sess, "No direct messages found.")
	}
	s.reply(sess, "======================")
}

func (s *Server) handleViewChannelMessages(sess *Session, args []string) {
	if sess.Username == "" {
		s.replyError(sess, protocol.Authf("viewChannelMessages", "You must be logged in."))
		return
	}

	if len(args) < 1 {
		s.replyError(sess, protocol.Protocolf("viewChannelMessages",
			"usage: viewChannelMessages <channel_name>"))
		s.reply(sess, "Example: viewChannelMessages general")
		return
	}

	channel := strings.TrimPrefix(args[0], "#")

	messages, err := s.db.GetChannelMessages(channel)
	if err != nil {
		s.log.Error("channel message query failed", "channel", channel, "error", err)
		s.replyError(sess, protocol.Storagef("viewChannelMessages",
			"Failed to retrieve channel messages."))
		return
	}

	s.reply(sess, "=== CHANNEL MESSAGES (#"+channel+") ===")
	for _, m := range messages {
		s.reply(sess, "["+m.Timestamp.Format(time.RFC3339)+"] "+m.Sender+": "+m.Body)
	}
	if len(messages) == 0 {
		s.reply(sess, "No messages found in channel #"+channel)
	}
	s.reply(sess, "==========================")
}
