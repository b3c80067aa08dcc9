package inmemory

import (
	"log/slog"
	"sync"

	"github.com/sharetube/watchparty/internal/repository/connection"
	"github.com/sharetube/watchparty/pkg/wsrouter"
	"golang.org/x/exp/maps"
)

type member struct {
	channelID string
	identity  string
}

// repo tracks the live websocket of every member connected to this process.
// A member has at most one registered connection.
type repo struct {
	connList map[*wsrouter.Conn]member
	idList   map[string]map[string]*wsrouter.Conn
	mu       sync.RWMutex
	logger   *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	if logger == nil {
		logger = slog.Default()
	}

	return &repo{
		connList: make(map[*wsrouter.Conn]member),
		idList:   make(map[string]map[string]*wsrouter.Conn),
		logger:   logger,
	}
}

// Add registers conn for the member and returns the connection it replaced,
// if any. The caller is responsible for closing the replaced one.
func (r *repo) Add(conn *wsrouter.Conn, channelID, identity string) *wsrouter.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug("called", "channel_id", channelID, "identity", identity)
	conns, ok := r.idList[channelID]
	if !ok {
		conns = make(map[string]*wsrouter.Conn)
		r.idList[channelID] = conns
	}

	prev := conns[identity]
	if prev != nil {
		delete(r.connList, prev)
	}

	conns[identity] = conn
	r.connList[conn] = member{channelID: channelID, identity: identity}

	return prev
}

// RemoveByConn unregisters conn. It is a no-op when conn was already
// replaced by a newer connection of the same member.
func (r *repo) RemoveByConn(conn *wsrouter.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.connList[conn]
	if !ok {
		r.logger.Debug("returned", "error", connection.ErrNotFound)
		return connection.ErrNotFound
	}

	delete(r.connList, conn)
	if conns := r.idList[m.channelID]; conns[m.identity] == conn {
		delete(conns, m.identity)
		if len(conns) == 0 {
			delete(r.idList, m.channelID)
		}
	}

	return nil
}

func (r *repo) GetConn(channelID, identity string) (*wsrouter.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.idList[channelID][identity]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) GetConns(channelID string) []*wsrouter.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Values(r.idList[channelID])
}
