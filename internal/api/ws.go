package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultWSIdleTimeout = 60 * time.Second
	wsWriteTimeout       = 10 * time.Second
	wsPingInterval       = 25 * time.Second
)

type wsReply struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
}

func (s *server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.CORSOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// wsChat relays chat messages over a websocket. Each text frame carrying
// {"message": ...} is answered with one {"reply": ...} or {"error": ...} frame;
// a bad frame does not close the connection.
func (s *server) wsChat(c *gin.Context) {
	up := s.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		log.Warn().Err(err).Str("request_id", requestID(c)).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	id := requestID(c)
	conn.SetReadLimit(s.MaxBodyBytes)
	conn.SetReadDeadline(time.Now().Add(s.WSIdleTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.WSIdleTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	log.Debug().Str("request_id", id).Msg("WebSocket chat opened")
	ctx := c.Request.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Str("request_id", id).Msg("WebSocket chat closed")
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("request_id", id).Msg("WebSocket chat closed unexpectedly")
			}
			return
		}

		out := s.wsAnswer(ctx, msgType, data)
		if out.Error != "" {
			log.Debug().Str("request_id", id).Str("error", out.Error).Msg("WebSocket chat frame rejected")
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(out); err != nil {
			log.Warn().Err(err).Str("request_id", id).Msg("WebSocket write failed")
			return
		}
		// the idle window starts once the reply is out
		conn.SetReadDeadline(time.Now().Add(s.WSIdleTimeout))
	}
}

func (s *server) wsAnswer(ctx context.Context, msgType int, data []byte) wsReply {
	if msgType != websocket.TextMessage {
		return wsReply{Error: "only text frames are supported"}
	}
	var req chatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return wsReply{Error: "invalid message: " + err.Error()}
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return wsReply{Error: "message is required"}
	}

	reply, err := s.reply(ctx, message)
	if err != nil {
		return wsReply{Error: "chat assistant unavailable: " + err.Error()}
	}
	return wsReply{Reply: reply}
}
