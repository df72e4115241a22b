package cache

// lruNode links a key into the recency list.
type lruNode[K comparable] struct {
	key          K
	newer, older *lruNode[K]
}

// lruList orders keys from most recently used (newest) to least (oldest).
// Callers handle synchronization.
type lruList[K comparable] struct {
	newest, oldest *lruNode[K]
	len            int
}

func (l *lruList[K]) pushFront(key K) *lruNode[K] {
	n := &lruNode[K]{key: key}
	l.insertNewest(n)
	return n
}

func (l *lruList[K]) moveToFront(n *lruNode[K]) {
	if l.newest == n {
		return
	}
	l.unlink(n)
	l.insertNewest(n)
}

// removeOldest drops the least recently used key.
func (l *lruList[K]) removeOldest() (K, bool) {
	n := l.oldest
	if n == nil {
		var zero K
		return zero, false
	}
	l.unlink(n)
	return n.key, true
}

func (l *lruList[K]) insertNewest(n *lruNode[K]) {
	n.newer, n.older = nil, l.newest
	if l.newest == nil {
		l.oldest = n
	} else {
		l.newest.newer = n
	}
	l.newest = n
	l.len++
}

func (l *lruList[K]) unlink(n *lruNode[K]) {
	if n.newer == nil {
		l.newest = n.older
	} else {
		n.newer.older = n.older
	}
	if n.older == nil {
		l.oldest = n.newer
	} else {
		n.older.newer = n.newer
	}
	n.newer, n.older = nil, nil
	l.len--
}
