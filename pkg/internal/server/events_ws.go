package server

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/wanderparty/tripchat/pkg/internal/models"
)

// wsSink adapts one websocket connection into an event sink. Writes are
// serialized; the fan-out may reach the same connection from several
// rooms at once.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) WriteEvent(ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, ev.Marshal())
}

// partyGateway runs the event loop for one client session.
func (app *App) partyGateway(c *websocket.Conn) {
	user := c.Locals("principal").(models.Account)
	sessionId := uuid.NewString()
	sink := &wsSink{conn: c}

	// Push connection
	app.registry.Conns.Register(user.UserID, sessionId, sink)

	defer func() {
		// Pop connection; membership does not survive the transport, the
		// client replays joins on reconnect.
		app.registry.Conns.Unregister(user.UserID, sessionId)
		fullyLeft := app.registry.Rooms.LeaveAll(user.UserID, sessionId)
		app.registry.Presence.Disconnect(user.UserID, fullyLeft)
	}()

	for {
		_, packet, err := c.ReadMessage()
		if err != nil {
			break
		}

		var ev models.Event
		if err := jsoniter.Unmarshal(packet, &ev); err != nil {
			_ = sink.WriteEvent(models.EventFromError(
				models.ErrValidation("unable to unmarshal your event, requires json request"),
				time.Now(),
			))
			continue
		}

		if reply := app.dealEvent(user, sessionId, ev); reply != nil {
			if err := sink.WriteEvent(*reply); err != nil {
				break
			}
		}
	}
}

// dealEvent handles the session-scoped control events here and hands the
// rest to the router. Returned events go to the caller only.
func (app *App) dealEvent(user models.Account, sessionId string, ev models.Event) *models.Event {
	switch ev.Type {
	case models.EventUserJoined:
		// Inbound userJoined is the join request for this session.
		vacationId := ev.VacationID()
		if len(vacationId) == 0 {
			reply := models.EventFromError(models.ErrValidation("a join request carries no vacation id"), time.Now())
			return &reply
		}
		app.registry.Rooms.Join(vacationId, user, sessionId)
		app.registry.Presence.TouchOnline(vacationId, user)
		log.Debug().Str("user_id", user.UserID).Str("vacation_id", vacationId).Msg("User joined a vacation party.")
		return nil
	case models.EventUserLeft:
		vacationId := ev.VacationID()
		if len(vacationId) == 0 {
			reply := models.EventFromError(models.ErrValidation("a leave request carries no vacation id"), time.Now())
			return &reply
		}
		if app.registry.Rooms.Leave(vacationId, user.UserID, sessionId) {
			app.registry.Locations.Forget(vacationId, user.UserID)
			app.registry.Presence.Disconnect(user.UserID, []string{vacationId})
		}
		return nil
	default:
		return app.registry.Router.Dispatch(user, ev)
	}
}
