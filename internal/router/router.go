// Package router routes incoming messages to handlers by topic filter.
package router

import (
	"sort"
	"strings"
	"sync"

	"github.com/RoanBrand/mqttc/internal/model"
)

// Handler receives a message whose topic matched the pattern it was registered with.
type Handler func(msg model.Message)

type handler struct {
	seq     uint64
	pattern []string // levels, ":name" kept
	params  bool
	fn      Handler
}

type topicLevel struct {
	children topicTree
	handlers []*handler
}

type topicTree map[string]*topicLevel // level -> sub levels

// Router is a topic tree of handlers. Patterns are topic filters where a
// level may also be ":name", which matches one level like '+' and reports
// the matched value in Message.Params.
type Router struct {
	mu   sync.RWMutex
	tree topicTree
	seq  uint64
}

func New() *Router {
	return &Router{tree: make(topicTree, 4)}
}

// ToFilter converts a pattern into the topic filter to subscribe with.
func ToFilter(pattern string) string {
	levels := strings.Split(pattern, "/")
	for i, l := range levels {
		if strings.HasPrefix(l, ":") {
			levels[i] = "+"
		}
	}
	return strings.Join(levels, "/")
}

// Handle registers fn for pattern. The returned func removes it again.
func (r *Router) Handle(pattern string, fn Handler) (remove func()) {
	levels := strings.Split(pattern, "/")
	filter := strings.Split(ToFilter(pattern), "/")

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	h := &handler{seq: r.seq, pattern: levels, params: pattern != strings.Join(filter, "/"), fn: fn}

	var tl *topicLevel
	l := r.tree
	for _, f := range filter {
		var ok bool
		if tl, ok = l[f]; !ok {
			tl = &topicLevel{children: make(topicTree, 2)}
			l[f] = tl
		}
		l = tl.children
	}
	tl.handlers = append(tl.handlers, h)

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(filter, h) })
	}
}

func (r *Router) remove(filter []string, h *handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var remove func(topicTree, int) bool
	remove = func(l topicTree, n int) bool {
		tl, ok := l[filter[n]]
		if !ok {
			return false
		}
		if n < len(filter)-1 {
			if !remove(tl.children, n+1) {
				return false
			}
		} else {
			for i, lh := range tl.handlers {
				if lh == h {
					tl.handlers = append(tl.handlers[:i], tl.handlers[i+1:]...)
					break
				}
			}
		}
		if len(tl.handlers) == 0 && len(tl.children) == 0 {
			delete(l, filter[n])
		}
		return true
	}
	remove(r.tree, 0)
}

// Len returns the number of registered handlers.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count func(topicTree) int
	count = func(l topicTree) (n int) {
		for _, tl := range l {
			n += len(tl.handlers) + count(tl.children)
		}
		return
	}
	return count(r.tree)
}

// match returns the handlers for topic in registration order.
func (r *Router) match(topic string) []*handler {
	levels := strings.Split(topic, "/")
	var matched []*handler

	var matchLevel func(topicTree, int)
	matchLevel = func(l topicTree, n int) {
		// direct match
		if nl, ok := l[levels[n]]; ok {
			if n < len(levels)-1 {
				matchLevel(nl.children, n+1)
			} else {
				matched = append(matched, nl.handlers...)
				if nl, ok := nl.children["#"]; ok { // # match - next level
					matched = append(matched, nl.handlers...)
				}
			}
		}

		// wildcards never match a leading '$' level [MQTT-4.7.2-1]
		if n == 0 && strings.HasPrefix(levels[0], "$") {
			return
		}

		// # match
		if nl, ok := l["#"]; ok {
			matched = append(matched, nl.handlers...)
		}

		// + match
		if nl, ok := l["+"]; ok {
			if n < len(levels)-1 {
				matchLevel(nl.children, n+1)
			} else {
				matched = append(matched, nl.handlers...)
				if nl, ok := nl.children["#"]; ok {
					matched = append(matched, nl.handlers...)
				}
			}
		}
	}

	r.mu.RLock()
	matchLevel(r.tree, 0)
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	return matched
}

// Dispatch calls every handler whose pattern matches msg.Topic and returns how many there were.
func (r *Router) Dispatch(msg model.Message) int {
	handlers := r.match(msg.Topic)
	if len(handlers) == 0 {
		return 0
	}

	levels := strings.Split(msg.Topic, "/")
	for _, h := range handlers {
		m := msg
		m.Params = nil
		if h.params {
			m.Params = extractParams(h.pattern, levels)
		}
		h.fn(m)
	}
	return len(handlers)
}

func extractParams(pattern, topic []string) map[string]string {
	params := make(map[string]string, 1)
	for i := 0; i < len(pattern) && i < len(topic); i++ {
		if strings.HasPrefix(pattern[i], ":") {
			params[pattern[i][1:]] = topic[i]
		}
	}
	return params
}
