package bridge

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler decides what the parent does with an incoming message. For payment
// links, returning true claims the link and sends the ACK.
type Handler func(m Message) bool

// Server is the parent side: it accepts embedded clients from allow-listed
// origins only.
type Server struct {
	allowed  map[string]struct{}
	handle   Handler
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer builds a parent endpoint. An empty allow-list rejects every
// cross-origin client; requests without an Origin header are accepted.
func NewServer(allowedOrigins []string, h Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{allowed: map[string]struct{}{}, handle: h, log: log}
	for _, o := range allowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			s.allowed[o] = struct{}{}
		}
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := s.allowed[normalizeOrigin(origin)]
	if !ok {
		s.log.Warn("bridge origin rejected", zap.String("origin", origin))
	}
	return ok
}

func normalizeOrigin(o string) string {
	u, err := url.Parse(strings.TrimSpace(o))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// ServeHTTP upgrades and serves one embedded client until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			return
		}
		accepted := s.handle != nil && s.handle(m)
		s.log.Debug("bridge message",
			zap.String("type", string(m.Type)),
			zap.String("id", m.ID),
			zap.Bool("accepted", accepted),
		)
		if m.Type == TypePaymentLink && accepted {
			ack := Message{ID: m.ID, Type: TypeAck, Timestamp: m.Timestamp}
			if err := conn.WriteJSON(ack); err != nil {
				return
			}
		}
	}
}
