package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/toolharness/pkg/harness"
	"github.com/MrWong99/toolharness/pkg/tool"
)

// Stream operations.
const (
	opCall     = "call"
	opDescribe = "describe"
)

// frame is one client message on /v1/ws. An empty Op means "call".
type frame struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Op        string          `json:"op,omitempty"`
	ToolName  string          `json:"toolName"`
	Arguments map[string]any  `json:"arguments"`
}

// reply answers one frame and echoes its ID. Exactly one of Result and
// Description is set.
type reply struct {
	ID          json.RawMessage      `json:"id,omitempty"`
	Result      *tool.Result         `json:"result,omitempty"`
	Description *harness.Description `json:"description,omitempty"`
}

// handleStream serves one WebSocket session. Frames are processed
// concurrently, so replies may arrive out of order; clients correlate them
// by id. When the client goes away in-flight calls are cancelled.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("httpapi: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.maxBody)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if s.streams != nil {
		s.streams.StreamOpened(ctx)
		defer s.streams.StreamClosed(ctx)
	}
	s.log.Debug("httpapi: stream opened", "remote", r.RemoteAddr)

	var g errgroup.Group
	g.SetLimit(s.streamConcurrency)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			s.logStreamEnd(err)
			break
		}
		if typ != websocket.MessageText {
			s.send(ctx, conn, badFrame(nil, "binary frames are not supported"))
			continue
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.send(ctx, conn, badFrame(nil, "invalid frame: "+err.Error()))
			continue
		}
		g.Go(func() error {
			s.send(ctx, conn, s.serveFrame(ctx, f))
			return nil
		})
	}

	cancel()
	_ = g.Wait()
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) serveFrame(ctx context.Context, f frame) reply {
	switch f.Op {
	case "", opCall:
		res := s.h.Call(ctx, tool.Request{ToolName: f.ToolName, Arguments: f.Arguments})
		return reply{ID: f.ID, Result: &res}
	case opDescribe:
		desc := s.h.Describe()
		return reply{ID: f.ID, Description: &desc}
	default:
		return badFrame(f.ID, fmt.Sprintf("unknown op %q", f.Op))
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, rep reply) {
	if err := wsjson.Write(ctx, conn, rep); err != nil && ctx.Err() == nil {
		s.log.Debug("httpapi: stream write failed", "err", err)
	}
}

func (s *Server) logStreamEnd(err error) {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		s.log.Debug("httpapi: stream closed by client")
	default:
		if !errors.Is(err, context.Canceled) {
			s.log.Debug("httpapi: stream ended", "err", err)
		}
	}
}

func badFrame(id json.RawMessage, msg string) reply {
	res := tool.Failure(ErrBadRequest, msg)
	return reply{ID: id, Result: &res}
}
