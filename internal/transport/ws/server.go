package ws

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rtsgarrison.dev/internal/protocol"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/world"
)

const maxCommandBytes = 16 * 1024

// Server is the command ingress. Commands are queued on the world inbox and
// applied at the next tick boundary; a RESULT only says whether queuing worked.
type Server struct {
	world   *world.World
	log     zerolog.Logger
	schemas *protocol.Schemas

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger zerolog.Logger, schemas *protocol.Schemas) *Server {
	return &Server{
		world:   w,
		log:     logger.With().Str("component", "commands").Logger(),
		schemas: schemas,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxCommandBytes,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
	}
}

// Handler serves the command WS: COMMAND in, RESULT out, one for one.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxCommandBytes)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCommand {
				if err := writeJSON(conn, result("", reject(s.world.CurrentTick(), protocol.ErrProtoBadRequest, "expected COMMAND"))); err != nil {
					return
				}
				continue
			}
			var id string
			var m protocol.CommandMsg
			if err := json.Unmarshal(msg, &m); err == nil {
				id = m.ID
			}
			var resp protocol.CommandResponse
			if base.ProtocolVersion != protocol.Version {
				resp = reject(s.world.CurrentTick(), protocol.ErrProtoBadRequest, "bad protocol_version")
			} else {
				resp = s.Submit(msg)
			}
			if err := writeJSON(conn, result(id, resp)); err != nil {
				return
			}
		}
	}
}

// CommandHandler serves POST /admin/v1/command.
func (s *Server) CommandHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes+1))
		var resp protocol.CommandResponse
		switch {
		case err != nil:
			resp = reject(s.world.CurrentTick(), protocol.ErrProtoBadRequest, err.Error())
		case len(body) > maxCommandBytes:
			resp = reject(s.world.CurrentTick(), protocol.ErrProtoBadRequest, "body too large")
		default:
			resp = s.Submit(body)
		}

		status := http.StatusAccepted
		switch resp.Code {
		case "":
		case protocol.ErrWorldBusy:
			status = http.StatusServiceUnavailable
		default:
			status = http.StatusBadRequest
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// Submit validates one raw command and queues it without blocking.
func (s *Server) Submit(raw []byte) protocol.CommandResponse {
	tick := s.world.CurrentTick()
	if err := s.schemas.ValidateCommand(raw); err != nil {
		return reject(tick, protocol.ErrProtoBadRequest, err.Error())
	}
	var req protocol.CommandRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return reject(tick, protocol.ErrProtoBadRequest, err.Error())
	}
	kind, ok := world.ParseCommandKind(req.Kind)
	if !ok {
		return reject(tick, protocol.ErrBadCommand, "unknown kind "+req.Kind)
	}
	if req.Subject == 0 {
		return reject(tick, protocol.ErrUnknownObject, "missing subject")
	}
	cmd := world.Command{
		Kind:    kind,
		Subject: ids.ObjectID(req.Subject),
		Target:  ids.ObjectID(req.Target),
		Pos:     req.Pos,
		Amount:  req.Amount,
		Door:    req.Door,
	}
	select {
	case s.world.Inbox() <- cmd:
	default:
		s.log.Warn().Str("kind", req.Kind).Uint32("subject", req.Subject).Msg("inbox full, command dropped")
		return reject(tick, protocol.ErrWorldBusy, "command queue full")
	}
	return protocol.CommandResponse{Accepted: true, Tick: tick}
}

func reject(tick uint64, code, msg string) protocol.CommandResponse {
	return protocol.CommandResponse{Tick: tick, Code: code, Message: msg}
}

func result(id string, resp protocol.CommandResponse) protocol.ResultMsg {
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ID:              id,
		CommandResponse: resp,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
