package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-live/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("session_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8090/session", "UI bridge address")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s\n", *addr)
	fmt.Println("Type to chat. Commands: /audio /video /share /unshare /focus <attendee> /leave /back")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	var seenChat uint64
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				fmt.Println("session closed")
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch outbound.Type {
		case proto.OutboundTypeHello:
			fmt.Printf("protocol v%d\n", outbound.Protocol)
		case proto.OutboundTypeError:
			if outbound.Error != nil {
				fmt.Printf("error %s: %s\n", outbound.Error.Code, outbound.Error.Msg)
			}
		case proto.OutboundTypeSnapshot:
			seenChat = printSnapshot(outbound.Snapshot, seenChat)
		default:
			fmt.Printf("type=%s\n", outbound.Type)
		}
	}
}

// printSnapshot prints the session summary and chat messages newer than
// seen. It returns the last printed sequence number.
func printSnapshot(s *proto.Snapshot, seen uint64) uint64 {
	if s == nil {
		return seen
	}
	names := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		name := p.DisplayName
		if name == "" {
			name = p.UserID
		}
		if p.MicOn {
			name += "+mic"
		}
		if p.VideoOn {
			name += "+cam"
		}
		names = append(names, name)
	}
	line := fmt.Sprintf("[%s] %s", s.Status, strings.Join(names, ", "))
	if s.Recording {
		line += " (recording)"
	}
	if s.ContentShareOwner != "" {
		line += " share=" + s.ContentShareOwner
	}
	if s.FocusedAttendeeID != "" {
		line += " focus=" + s.FocusedAttendeeID
	}
	if s.ExitReason != "" {
		line += " exit=" + s.ExitReason
	}
	fmt.Println(line)

	for _, m := range s.ChatMessages {
		if m.Seq <= seen {
			continue
		}
		seen = m.Seq
		sender := m.SenderUserID
		if m.Local {
			sender = "me"
		}
		fmt.Printf("%s %s: %s\n", time.UnixMilli(m.TS).Format(time.Kitchen), sender, m.Text)
	}
	return seen
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			inbound, err := parseLine(text)
			if err != nil {
				log.Printf("%v", err)
				continue
			}
			if err := wsjson.Write(ctx, conn, inbound); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

func parseLine(text string) (proto.Inbound, error) {
	if !strings.HasPrefix(text, "/") {
		payload, err := json.Marshal(proto.ChatData{Text: text})
		if err != nil {
			return proto.Inbound{}, fmt.Errorf("marshal chat: %w", err)
		}
		return proto.Inbound{Type: proto.InboundTypeChat, Data: payload}, nil
	}

	cmd, arg, _ := strings.Cut(text, " ")
	switch cmd {
	case "/audio":
		return proto.Inbound{Type: proto.InboundTypeToggleAudio}, nil
	case "/video":
		return proto.Inbound{Type: proto.InboundTypeToggleVideo}, nil
	case "/share":
		return proto.Inbound{Type: proto.InboundTypeShareStart}, nil
	case "/unshare":
		return proto.Inbound{Type: proto.InboundTypeShareStop}, nil
	case "/leave":
		return proto.Inbound{Type: proto.InboundTypeLeave}, nil
	case "/back":
		return proto.Inbound{Type: proto.InboundTypeNavigateBack}, nil
	case "/focus":
		payload, err := json.Marshal(proto.FocusData{AttendeeID: strings.TrimSpace(arg)})
		if err != nil {
			return proto.Inbound{}, fmt.Errorf("marshal focus: %w", err)
		}
		return proto.Inbound{Type: proto.InboundTypeFocus, Data: payload}, nil
	default:
		return proto.Inbound{}, fmt.Errorf("unknown command %s", cmd)
	}
}
