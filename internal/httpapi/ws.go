package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/botcall/internal/call"
	"github.com/ent0n29/botcall/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
)

// handleCallWS streams state snapshots and accepts call commands. All writes
// happen on the writer goroutine.
func (s *Server) handleCallWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	states, unsubscribe := s.call.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, cancel, conn, states, outbound)
		// Unblocks the reader when the writer gave up first.
		_ = conn.Close()
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		var reply any
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			reply = protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Source: "gateway",
				Detail: err.Error(),
			}
		} else {
			if t, ok := messageTypeOf(parsed); ok {
				s.metrics.ObserveWSMessage("inbound", string(t))
			}
			reply = s.dispatch(ctx, r, parsed)
		}

		select {
		case <-ctx.Done():
			break readLoop
		case outbound <- reply:
		default:
			s.logger.Warn().Str("event", "ws.outbound_full").Msg("dropping websocket reply")
		}
	}

	cancel()
	<-writerDone
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, states <-chan call.State, outbound <-chan any) {
	lastNotice := ""
	write := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Debug().Err(err).Str("event", "ws.write_failed").Msg("websocket write failed")
			cancel()
			return false
		}
		if t, ok := messageTypeOf(msg); ok {
			s.metrics.ObserveWSMessage("outbound", string(t))
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "call controller stopped"),
					time.Now().Add(time.Second))
				cancel()
				return
			}
			if st.Notice != nil && st.Notice.ID != lastNotice {
				lastNotice = st.Notice.ID
				if !write(protocol.NoticeEvent{Type: protocol.TypeNoticeEvent, Notice: *st.Notice}) {
					return
				}
			}
			if !write(protocol.StateSnapshot{Type: protocol.TypeStateSnapshot, State: st}) {
				return
			}
		case msg := <-outbound:
			if !write(msg) {
				return
			}
		}
	}
}

// dispatch runs one client message and returns the reply to send.
func (s *Server) dispatch(ctx context.Context, r *http.Request, msg any) any {
	switch m := msg.(type) {
	case protocol.ClientPing:
		return protocol.Pong{Type: protocol.TypePong, TSMs: m.TSMs}
	case protocol.ClientCommand:
		if !s.allowCommand(r) {
			return protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "rate_limited",
				Source:    "gateway",
				RequestID: m.RequestID,
				Detail:    "too many call commands, try again later",
			}
		}
		s.metrics.ObserveCommand(m.Action, "ws")
		switch m.Action {
		case protocol.ActionConnect:
			if err := s.call.Connect(ctx); err != nil {
				_, code := connectErrorStatus(err)
				return protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					Code:      code,
					Source:    "call",
					RequestID: m.RequestID,
					Detail:    err.Error(),
				}
			}
		case protocol.ActionDisconnect:
			s.call.Disconnect()
		case protocol.ActionToggleMic:
			s.call.ToggleMicrophone()
		case protocol.ActionToggleCamera:
			s.call.ToggleCamera()
		}
		return protocol.CommandAck{Type: protocol.TypeCommandAck, Action: m.Action, RequestID: m.RequestID}
	default:
		return protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "unsupported_message", Source: "gateway"}
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientCommand:
		return m.Type, true
	case protocol.ClientPing:
		return m.Type, true
	case protocol.StateSnapshot:
		return m.Type, true
	case protocol.NoticeEvent:
		return m.Type, true
	case protocol.CommandAck:
		return m.Type, true
	case protocol.Pong:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
