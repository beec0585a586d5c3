package gateway

import "sync"

// lanes runs work one key at a time, in arrival order, while different keys
// run concurrently. A lane's goroutine exits once its queue drains.
type lanes struct {
	mu     sync.Mutex
	queues map[string][]func()
}

func (l *lanes) dispatch(key string, fn func()) {
	l.mu.Lock()
	if l.queues == nil {
		l.queues = make(map[string][]func())
	}
	q, running := l.queues[key]
	l.queues[key] = append(q, fn)
	l.mu.Unlock()
	if !running {
		go l.drain(key)
	}
}

func (l *lanes) drain(key string) {
	for {
		l.mu.Lock()
		q := l.queues[key]
		if len(q) == 0 {
			delete(l.queues, key)
			l.mu.Unlock()
			return
		}
		fn := q[0]
		l.queues[key] = q[1:]
		l.mu.Unlock()
		fn()
	}
}
