package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/castlinker/chatd/internal/database"
	"github.com/castlinker/chatd/internal/presence"
	"github.com/castlinker/chatd/internal/stats"
)

type unloadRoomRequest struct {
	roomId  string
	deleted bool
	done    chan struct{}
}

// roomEvent routes a server-side event (produced by the REST path) to
// the live room's fan-out loop, if the room is loaded.
type roomEvent struct {
	roomId string
	msg    *ServerMessage
}

type ChatServer struct {
	log            *log.Logger
	db             database.ChatRepository
	presence       presence.Store
	stats          stats.StatsProvider
	typingTTL      time.Duration
	clients        map[*Client]struct{}
	userClients    map[int]map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	registerChan   chan *Client
	deRegisterChan chan *Client
	broadcastChan  chan *ServerMessage
	routeChan      chan *roomEvent
	unloadRoomChan chan unloadRoomRequest
	rooms          map[string]*Room
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, ps presence.Store, sp stats.StatsProvider, typingTTL time.Duration) (*ChatServer, error) {
	if typingTTL <= 0 {
		typingTTL = presence.DefaultTypingTTL
	}

	cs := &ChatServer{
		log:            logger,
		db:             db,
		presence:       ps,
		stats:          sp,
		typingTTL:      typingTTL,
		clients:        make(map[*Client]struct{}),
		userClients:    make(map[int]map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		broadcastChan:  make(chan *ServerMessage, 512),
		routeChan:      make(chan *roomEvent, 512),
		unloadRoomChan: make(chan unloadRoomRequest, 64),
		rooms:          make(map[string]*Room),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	sp.RegisterMetric(stats.ActiveConnections)
	sp.RegisterMetric(stats.LoadedRooms)
	sp.RegisterMetric(stats.MessagesSent)
	sp.RegisterMetric(stats.ReactionsToggled)
	sp.RegisterMetric(stats.TypingEvents)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoinRequest(joinMsg)
		case client := <-cs.registerChan:
			cs.log.Printf("adding connection from %q", client.user.Username)
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection from %q", client.user.Username)
			cs.removeClient(client)
		case msg := <-cs.broadcastChan:
			cs.deliverToUser(msg)
		case ev := <-cs.routeChan:
			if room, ok := cs.rooms[ev.roomId]; ok {
				select {
				case room.eventChan <- ev.msg:
				default:
					cs.log.Printf("event channel full on room %q", room.externalId)
				}
			}
		case req := <-cs.unloadRoomChan:
			r, ok := cs.rooms[req.roomId]
			if ok {
				cs.unloadRoom(r.externalId)
				r.exit <- exitReq{deleted: req.deleted}
				<-r.done
			}
			if req.done != nil {
				close(req.done)
			}
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				cs.log.Println("shutting down room", r.externalId)
				close(r.exit)

				<-r.done
			}

			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) handleJoinRequest(joinMsg *ClientMessage) {
	if room, ok := cs.rooms[joinMsg.Join.RoomId]; ok {
		select {
		case room.joinChan <- joinMsg:
		default:
			cs.log.Printf("join channel full on room %q", room.externalId)
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	dbRoom, err := cs.db.GetRoomByExternalId(joinMsg.Join.RoomId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			joinMsg.client.queueMessage(ErrRoomNotFound(joinMsg.Id))
		} else {
			joinMsg.client.queueMessage(ErrInternalError(joinMsg.Id))
		}
		return
	}

	room := newRoom(cs, dbRoom)
	cs.rooms[room.externalId] = room
	cs.stats.Incr(stats.LoadedRooms)
	room.joinChan <- joinMsg

	go room.start()
}

// RegisterClient adds a freshly upgraded connection to the server.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registerChan <- c
}

// NotifyUser queues a message for every connection belonging to userId.
// Delivery is best-effort; a full queue drops the event.
func (cs *ChatServer) NotifyUser(userId int, msg *ServerMessage) {
	msg.UserId = userId
	select {
	case cs.broadcastChan <- msg:
	default:
		cs.log.Printf("broadcast channel full, dropping event for user %d", userId)
	}
}

// RouteRoomEvent forwards a server-side event to the live room's
// fan-out loop. Events for unloaded rooms are discarded: nobody is
// listening.
func (cs *ChatServer) RouteRoomEvent(roomId string, msg *ServerMessage) {
	select {
	case cs.routeChan <- &roomEvent{roomId: roomId, msg: msg}:
	default:
		cs.log.Printf("route channel full, dropping event for room %q", roomId)
	}
}

// UnloadRoom removes a room from the server, notifying clients when the
// room was deleted.
func (cs *ChatServer) UnloadRoom(ctx context.Context, roomId string, deleted bool) error {
	req := unloadRoomRequest{roomId: roomId, deleted: deleted, done: make(chan struct{})}

	select {
	case cs.unloadRoomChan <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) deliverToUser(msg *ServerMessage) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	for c := range cs.userClients[msg.UserId] {
		if c == msg.SkipClient {
			continue
		}

		c.queueMessage(msg)
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	if cs.userClients[c.user.Id] == nil {
		cs.userClients[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userClients[c.user.Id][c] = struct{}{}

	cs.stats.Incr(stats.ActiveConnections)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	if userClients, ok := cs.userClients[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(cs.userClients, c.user.Id)
		}
	}

	cs.stats.Decr(stats.ActiveConnections)
}

func (cs *ChatServer) unloadRoom(roomId string) {
	if r, ok := cs.rooms[roomId]; ok {
		cs.log.Printf("removing room %q", r.externalId)
		delete(cs.rooms, roomId)
		cs.stats.Decr(stats.LoadedRooms)
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
