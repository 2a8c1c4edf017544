package transport

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
)

const DefaultWriteTimeout = 100 * time.Millisecond

// WebsocketDialer connects to consumer server, one text frame per line both ways.
type WebsocketDialer struct {
	URL          string
	WriteTimeout time.Duration
	dialer       websocket.Dialer
}

// compile-time interface check
var _ Dialer = &WebsocketDialer{}

func NewWebsocketDialer(url string, handshakeTimeout, writeTimeout time.Duration) *WebsocketDialer {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &WebsocketDialer{
		URL:          url,
		WriteTimeout: writeTimeout,
		dialer: websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

func (self *WebsocketDialer) Name() string { return "websocket" }

func (self *WebsocketDialer) Dial(gen uint32, ev Events) {
	go func() {
		conn, _, err := self.dialer.Dial(self.URL, nil)
		if err != nil {
			ev.OnClose(gen, errors.Annotatef(err, "websocket dial url=%s", self.URL))
			return
		}
		ev.OnHandshake(gen, &wsConn{conn: conn, timeout: self.WriteTimeout})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				ev.OnClose(gen, errors.Annotate(err, "websocket read"))
				return
			}
			ev.OnMessage(gen, msg)
		}
	}()
}

type wsConn struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (self *wsConn) WriteLine(line string) error {
	if err := self.conn.SetWriteDeadline(time.Now().Add(self.timeout)); err != nil {
		return errors.Annotate(err, "websocket write deadline")
	}
	return errors.Annotate(self.conn.WriteMessage(websocket.TextMessage, []byte(line)), "websocket write")
}

// Close may be called while reader goroutine is blocked, it unblocks with error.
func (self *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = self.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(self.timeout))
	return self.conn.Close()
}
