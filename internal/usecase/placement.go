package usecase

import (
	"sync"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

// placements serializes automatic node placement per chat inside this process.
var placements = &chatLocks{locks: make(map[models.ObjectID]*chatLock)}

type chatLock struct {
	sync.Mutex
	refs int
}

type chatLocks struct {
	mu    sync.Mutex
	locks map[models.ObjectID]*chatLock
}

// lock blocks until the chat is free and returns its release func.
func (l *chatLocks) lock(chatID models.ObjectID) func() {
	l.mu.Lock()
	cl, ok := l.locks[chatID]
	if !ok {
		cl = &chatLock{}
		l.locks[chatID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.Lock()
	return func() {
		cl.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, chatID)
		}
		l.mu.Unlock()
	}
}
