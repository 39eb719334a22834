package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rtsgarrison.dev/internal/observerproto"
	"rtsgarrison.dev/internal/protocol"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/world"
)

type Server struct {
	world   *world.World
	log     zerolog.Logger
	schemas *protocol.Schemas

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

// NewServer serves the read-only observer API. schemas may be nil.
func NewServer(w *world.World, logger zerolog.Logger, schemas *protocol.Schemas) *Server {
	return &Server{
		world:   w,
		log:     logger.With().Str("component", "observer").Logger(),
		schemas: schemas,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.world.Config()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.ID,
			Tick:            s.world.CurrentTick(),
			WorldParams: observerproto.WorldParams{
				TickRateHz:         cfg.TickRateHz,
				Seed:               cfg.Seed,
				SnapshotEveryTicks: cfg.SnapshotEveryTicks,
			},
			Catalogs: s.world.Catalogs().Digests(),
		}
		for _, p := range s.world.Players() {
			resp.Players = append(resp.Players, observerproto.PlayerInfo{ID: int8(p.ID), Name: p.Name})
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
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

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, err := s.decodeSubscribe(msg)
		if err != nil {
			s.log.Debug().Err(err).Msg("rejected subscribe")
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		tickOut := make(chan []byte, 8)

		joinReq := world.ObserverJoinRequest{
			SessionID:      sid,
			TickOut:        tickOut,
			Viewer:         ids.PlayerID(sub.Viewer),
			Containers:     toObjectIDs(sub.Containers),
			IncludeObjects: sub.IncludeObjects,
		}
		select {
		case s.world.ObserverJoin() <- joinReq:
		default:
			closeWith(conn, websocket.CloseTryAgainLater, "server busy")
			return
		}
		s.log.Info().Str("session", sid).Int8("viewer", sub.Viewer).Msg("observer joined")
		defer func() {
			select {
			case s.world.ObserverLeave() <- sid:
			default:
				// World loop is stopping; nothing else to do.
			}
			s.log.Info().Str("session", sid).Msg("observer left")
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-tickOut:
					if !ok {
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, err := s.decodeSubscribe(msg)
			if err != nil {
				continue
			}
			req := world.ObserverSubscribeRequest{
				SessionID:      sid,
				Viewer:         ids.PlayerID(sub.Viewer),
				Containers:     toObjectIDs(sub.Containers),
				IncludeObjects: sub.IncludeObjects,
			}
			select {
			case s.world.ObserverSubscribe() <- req:
			default:
				// Drop updates under load; the client may resend.
			}
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) decodeSubscribe(msg []byte) (observerproto.SubscribeMsg, error) {
	var sub observerproto.SubscribeMsg
	if err := s.schemas.ValidateSubscribe(msg); err != nil {
		return sub, err
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, err
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, fmt.Errorf("unexpected %s/%s", sub.Type, sub.ProtocolVersion)
	}
	normalizeSubscribe(&sub)
	return sub, nil
}

const maxSubscribedContainers = 256

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.Viewer < int8(ids.NoPlayer) || sub.Viewer >= int8(ids.MaxPlayers) {
		sub.Viewer = int8(ids.NoPlayer)
	}
	if len(sub.Containers) > maxSubscribedContainers {
		sub.Containers = sub.Containers[:maxSubscribedContainers]
	}
}

func toObjectIDs(in []uint32) []ids.ObjectID {
	if len(in) == 0 {
		return nil
	}
	out := make([]ids.ObjectID, len(in))
	for i, v := range in {
		out[i] = ids.ObjectID(v)
	}
	return out
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
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
