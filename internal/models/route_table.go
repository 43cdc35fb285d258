package models

import "sync"

// RouteKey identifies the source side of a relay route.
type RouteKey struct {
	Platform Platform
	ChatID   int64
}

// Route is the resolved target for messages arriving from a source chat.
type Route struct {
	PairID         uint
	SourceKind     ChatKind
	TargetPlatform Platform
	TargetChatID   int64
	DMMirroring    bool
}

// RouteTable is the in-memory routing index consulted on every inbound
// event. It mirrors the enabled pairs in the store; the pairing engine
// keeps it up to date on every mutation.
type RouteTable struct {
	routes  map[RouteKey]Route
	byPair  map[uint][]RouteKey
	routeMu sync.RWMutex
}

func NewRouteTable() *RouteTable {
	return &RouteTable{
		routes: make(map[RouteKey]Route),
		byPair: make(map[uint][]RouteKey),
	}
}

// Get returns the route for a source chat, if any.
func (t *RouteTable) Get(platform Platform, chatID int64) (Route, bool) {
	t.routeMu.RLock()
	defer t.routeMu.RUnlock()
	route, ok := t.routes[RouteKey{Platform: platform, ChatID: chatID}]
	return route, ok
}

// Put registers one direction of a pair.
func (t *RouteTable) Put(key RouteKey, route Route) {
	t.routeMu.Lock()
	defer t.routeMu.Unlock()
	t.routes[key] = route
	t.byPair[route.PairID] = append(t.byPair[route.PairID], key)
}

// RemovePair drops both directions of a pair.
func (t *RouteTable) RemovePair(pairID uint) {
	t.routeMu.Lock()
	defer t.routeMu.Unlock()
	for _, key := range t.byPair[pairID] {
		delete(t.routes, key)
	}
	delete(t.byPair, pairID)
}

// Len returns the number of registered route directions.
func (t *RouteTable) Len() int {
	t.routeMu.RLock()
	defer t.routeMu.RUnlock()
	return len(t.routes)
}
