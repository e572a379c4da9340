package advsearch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smhanov/advsearch/kql"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message or pong from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Operations accepted on the live socket.
const (
	opSerialize = "serialize"
	opParse     = "parse"
)

// liveRequest is one frame sent by the editor, usually per keystroke.
type liveRequest struct {
	Op      string           `json:"op"`
	Filters *kql.FilterState `json:"filters,omitempty"`
	Query   string           `json:"query,omitempty"`
}

type liveReply struct {
	Op       string           `json:"op"`
	Query    string           `json:"query,omitempty"`
	Filters  *kql.FilterState `json:"filters,omitempty"`
	Warnings []kql.Warning    `json:"warnings,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// handleLive upgrades to a websocket and answers translation requests until
// the peer goes away. Replies are sent in request order.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	replies := make(chan liveReply, 16)
	done := make(chan struct{})
	go s.writeLive(conn, replies, done)
	defer func() {
		close(replies)
		<-done
	}()

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("Live client connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("Live client read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var req liveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			replies <- liveReply{Error: "invalid message: " + err.Error()}
			continue
		}
		replies <- s.translate(req)
	}
}

// writeLive owns all writes to conn.
func (s *Server) writeLive(conn *websocket.Conn, replies <-chan liveReply, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case reply, ok := <-replies:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(reply); err != nil {
				s.log.Debug().Err(err).Msg("Live client write failed")
				conn.Close()
				// drain so the reader never blocks
				for range replies {
				}
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				for range replies {
				}
				return
			}
		}
	}
}

func (s *Server) translate(req liveRequest) liveReply {
	reply := liveReply{Op: req.Op}
	switch req.Op {
	case opSerialize:
		if req.Filters == nil {
			reply.Query = kql.MatchAll
			break
		}
		reply.Query = kql.Serialize(*req.Filters)
	case opParse:
		parsed := s.parseQuery(req.Query)
		reply.Query = req.Query
		reply.Filters = &parsed.Filters
		reply.Warnings = parsed.Warnings
	default:
		reply.Error = fmt.Sprintf("unknown op %q", req.Op)
	}
	return reply
}
