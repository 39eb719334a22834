package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rtsgarrison.dev/internal/logging"
	"rtsgarrison.dev/internal/observerproto"
	"rtsgarrison.dev/internal/protocol"
)

// bot plays one team: it watches the observer feed and garrisons idle infantry
// into the nearest building that still has room.
func main() {
	var (
		base      = flag.String("url", "ws://127.0.0.1:8080", "server ws base url")
		team      = flag.Int("team", 0, "player id to play")
		templates = flag.String("templates", "Rifleman,Ranger", "comma separated unit templates to garrison")
		every     = flag.Uint64("every", 30, "plan every N ticks")
	)
	flag.Parse()
	logger := logging.New(os.Stdout, "info", true).With().Str("component", "bot").Int("team", *team).Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	obs, _, err := websocket.DefaultDialer.DialContext(ctx, strings.TrimRight(*base, "/")+"/admin/v1/observer/ws", nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial observer")
	}
	defer obs.Close()
	cmds, _, err := websocket.DefaultDialer.DialContext(ctx, strings.TrimRight(*base, "/")+"/v1/ws", nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial commands")
	}
	defer cmds.Close()

	if err := obs.WriteJSON(observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Viewer:          int8(*team),
		IncludeObjects:  true,
	}); err != nil {
		logger.Fatal().Err(err).Msg("subscribe")
	}

	go readResults(cmds, logger)

	p := newPlanner(int8(*team), strings.Split(*templates, ","))
	for ctx.Err() == nil {
		_ = obs.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, msg, err := obs.ReadMessage()
		if err != nil {
			logger.Info().Err(err).Msg("observer closed")
			return
		}
		var tick observerproto.TickMsg
		if err := json.Unmarshal(msg, &tick); err != nil || tick.Type != observerproto.TypeTick {
			continue
		}
		if tick.Tick%*every != 0 {
			continue
		}
		for _, req := range p.plan(tick) {
			out := protocol.CommandMsg{
				Type:            protocol.TypeCommand,
				ProtocolVersion: protocol.Version,
				ID:              fmt.Sprintf("%d-%d", tick.Tick, req.Subject),
				CommandRequest:  req,
			}
			if err := cmds.WriteJSON(out); err != nil {
				logger.Error().Err(err).Msg("send command")
				return
			}
			logger.Info().Uint32("unit", req.Subject).Uint32("container", req.Target).Uint64("tick", tick.Tick).Msg("ENTER")
		}
	}
}

func readResults(conn *websocket.Conn, logger zerolog.Logger) {
	for {
		var res protocol.ResultMsg
		if err := conn.ReadJSON(&res); err != nil {
			return
		}
		if !res.Accepted {
			logger.Warn().Str("id", res.ID).Str("code", res.Code).Str("msg", res.Message).Msg("command refused")
		}
	}
}
