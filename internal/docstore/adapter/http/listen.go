package http

import (
	"sync"

	"carelog/internal/docstore/domain/model"
	"carelog/internal/shared/utils"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Listen message types.
const (
	MessageSnapshot = "snapshot"
	MessageError    = "error"
)

// ListenMessage is one frame of a listen stream: the full current result set, or an error
// after which the stream stays open and recovers on the next change.
type ListenMessage struct {
	Type      string           `json:"type"`
	Documents []Document       `json:"documents"`
	Error     *utils.ErrorBody `json:"error,omitempty"`
}

const (
	localListenPath = "listenPath"
	localListenSpec = "listenSpec"
)

// upgrade authorizes the listen request and parses its query before the protocol switch,
// so failures still get a plain HTTP answer.
func (h *DocumentHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	path, err := h.collection(c)
	if err != nil {
		return utils.WriteError(c, err)
	}
	spec, err := parseQuery(whereParams(c), c.Query("orderBy"))
	if err != nil {
		return utils.WriteError(c, err)
	}
	c.Locals(localListenPath, path)
	c.Locals(localListenSpec, spec)
	return c.Next()
}

func (h *DocumentHandler) listenHandler() fiber.Handler {
	return websocket.New(h.listen)
}

func (h *DocumentHandler) listen(conn *websocket.Conn) {
	path, _ := conn.Locals(localListenPath).(model.CollectionPath)
	spec, _ := conn.Locals(localListenSpec).(*model.QuerySpec)
	log := h.log.WithFields(map[string]interface{}{"collection": path.String()})

	var writeMu sync.Mutex
	send := func(msg ListenMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			log.Debugf("Failed to write listen frame: %v", err)
		}
	}

	sub, err := h.gw.SubscribeToCollection(path, spec, func(snaps []model.Snapshot, err error) {
		if err != nil {
			body := utils.NewErrorBody(err)
			send(ListenMessage{Type: MessageError, Error: &body})
			return
		}
		send(ListenMessage{Type: MessageSnapshot, Documents: toDocuments(snaps)})
	})
	if err != nil {
		body := utils.NewErrorBody(err)
		send(ListenMessage{Type: MessageError, Error: &body})
		return
	}
	// the conn goes back to a pool once this returns, so no delivery may outlive it
	defer func() {
		sub.Remove()
		<-sub.Done()
	}()
	log.Infof("Listener %s attached", sub.ID())

	// the client never sends anything we act on; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Infof("Listener %s detached", sub.ID())
			return
		}
	}
}
