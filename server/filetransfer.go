package server

import (
	"bufio"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"chatrelay/protocol"
)

// handleSendFile runs the two-phase file handshake on the sender's own
// connection: announce, READY_FOR_FILE, then exactly one payload line of
// base64. The sender's worker blocks on the payload read (no interleaved
// commands); the read carries a deadline so a silent client cannot stall the
// worker forever.
func (s *Server) handleSendFile(sess *Session, args []string, reader *bufio.Reader) {
	if sess.Username == "" {
		s.replyError(sess, protocol.Authf("sendFile", "Login required"))
		return
	}

	if len(args) < 4 {
		s.replyError(sess, protocol.Protocolf("sendFile",
			"sendFile <channel|user> <destination> <filesize> <filename>"))
		return
	}

	kind := strings.ToLower(args[0])
	if kind != "user" && kind != "channel" {
		s.replyError(sess, protocol.Validationf("sendFile",
			"Destination type must be 'user' or 'channel'."))
		return
	}

	destination := args[1]

	size, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil || size < 0 {
		s.replyError(sess, protocol.Validationf("sendFile", "Invalid file size."))
		return
	}

	// The filename is the remainder of the line and may contain spaces.
	filename := protocol.JoinRest(args, 3)

	s.reply(sess, "READY_FOR_FILE")

	sess.conn.SetReadDeadline(time.Now().Add(s.config.FileReadTimeout))
	payload, err := reader.ReadString('\n')
	if err != nil {
		s.replyError(sess, protocol.Validationf("sendFile", "No file data received"))
		return
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		s.replyError(sess, protocol.Validationf("sendFile",
			"File transfer failed: invalid file data"))
		return
	}

	// Declared size must match the decoded payload; on mismatch nothing is
	// persisted and nothing is forwarded.
	if int64(len(data)) != size {
		s.replyError(sess, protocol.Validationf("sendFile",
			"File size mismatch. Expected: "+strconv.FormatInt(size, 10)+
				", Received: "+strconv.Itoa(len(data))))
		return
	}

	if err := s.db.SaveFile(sess.Username, strings.ToUpper(kind), destination, filename, data, time.Now().UTC()); err != nil {
		s.log.Error("file save failed", "sender", sess.Username, "file", filename, "error", err)
		s.replyError(sess, protocol.Storagef("sendFile", "File transfer failed: could not store file."))
		return
	}

	s.forwardFile(kind, destination, filename, data)
	filesRelayed.Inc()

	s.reply(sess, "FILE SENT")
	s.log.Info("file relayed", "sender", sess.Username, "kind", kind,
		"destination", destination, "file", filename, "bytes", len(data))
}

// forwardFile pushes the incomingFile notification: to one handle for a user
// destination, to every authenticated handle for a channel. Delivery is
// best-effort; the stored record is the durability boundary.
func (s *Server) forwardFile(kind, destination, filename string, data []byte) {
	line := protocol.FormatFilePush(filename, data)

	if kind == "user" {
		if handle, ok := s.registry.Lookup(destination); ok {
			if err := handle.Push(line); err != nil {
				s.log.Warn("file delivery failed", "receiver", destination, "error", err)
			}
		}
		return
	}

	for _, handle := range s.registry.AuthedHandles() {
		if err := handle.Push(line); err != nil {
			s.log.Warn("file broadcast delivery failed", "session", handle.ID, "error", err)
		}
	}
}
