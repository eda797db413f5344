// Package ui bridges a live session to a presentation client over a
// WebSocket: snapshots go out, user intents come in.
package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-live/internal/media"
	"github.com/vovakirdan/wirechat-live/internal/proto"
	"github.com/vovakirdan/wirechat-live/internal/session"
)

// Session is the part of the session controller the bridge drives.
type Session interface {
	Subscribe() (<-chan session.Snapshot, media.Unsubscribe)
	ToggleAudio(ctx context.Context)
	ToggleVideo(ctx context.Context)
	StartContentShare(ctx context.Context)
	StopContentShare(ctx context.Context)
	SendChatMessage(ctx context.Context, text string)
	SetFocusedParticipant(attendeeID string)
	Exit(ctx context.Context, reason session.ExitReason) error
}

// Handler upgrades HTTP connections and bridges them to the session. A
// client that goes away without leaving ends the session as an unload.
type Handler struct {
	sess Session
	log  *zerolog.Logger
}

// NewHandler builds a new WebSocket handler.
func NewHandler(sess Session, logger *zerolog.Logger) *Handler {
	return &Handler{sess: sess, log: logger}
}

// NewServer serves the bridge on /session.
func NewServer(sess Session, addr string, logger *zerolog.Logger) *stdhttp.Server {
	mux := stdhttp.NewServeMux()
	mux.HandleFunc("/health", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
		_, _ = fmt.Fprint(w, "ok")
	})
	mux.Handle("/session", NewHandler(sess, logger))

	return &stdhttp.Server{Addr: addr, Handler: mux}
}

func (h *Handler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	snapshots, unsubscribe := h.sess.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeHello, Protocol: proto.ProtocolVersion}); err != nil {
		h.log.Warn().Err(err).Msg("write hello")
		h.unload()
		return
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, snapshots)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	// The write loop ends cleanly only after the session closed.
	if err != nil {
		h.unload()
	}

	status := websocket.StatusNormalClosure
	reason := "session closed"
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}
	conn.Close(status, reason)
}

func (h *Handler) unload() {
	if err := h.sess.Exit(context.Background(), session.ExitUnload); err != nil {
		h.log.Warn().Err(err).Msg("unload teardown failed")
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if protoErr := h.dispatch(ctx, inbound); protoErr != nil {
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, in proto.Inbound) *proto.Error {
	switch in.Type {
	case proto.InboundTypeToggleAudio:
		h.sess.ToggleAudio(ctx)
	case proto.InboundTypeToggleVideo:
		h.sess.ToggleVideo(ctx)
	case proto.InboundTypeShareStart:
		h.sess.StartContentShare(ctx)
	case proto.InboundTypeShareStop:
		h.sess.StopContentShare(ctx)
	case proto.InboundTypeChat:
		var data proto.ChatData
		if err := json.Unmarshal(in.Data, &data); err != nil {
			return &proto.Error{Code: "bad_request", Msg: "invalid chat payload"}
		}
		h.sess.SendChatMessage(ctx, data.Text)
	case proto.InboundTypeFocus:
		var data proto.FocusData
		if len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, &data); err != nil {
				return &proto.Error{Code: "bad_request", Msg: "invalid focus payload"}
			}
		}
		h.sess.SetFocusedParticipant(data.AttendeeID)
	case proto.InboundTypeLeave:
		h.exit(ctx, session.ExitLeave)
	case proto.InboundTypeNavigateBack:
		h.exit(ctx, session.ExitNavigateBack)
	default:
		return &proto.Error{Code: "unknown_type", Msg: "unknown message type " + in.Type}
	}
	return nil
}

func (h *Handler) exit(ctx context.Context, reason session.ExitReason) {
	if err := h.sess.Exit(ctx, reason); err != nil {
		h.log.Warn().Err(err).Str("reason", string(reason)).Msg("exit did not finish")
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, snapshots <-chan session.Snapshot) error {
	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:     proto.OutboundTypeSnapshot,
				Snapshot: snapshotToProto(snap),
			}); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
