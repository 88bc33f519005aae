package viz

import (
	"sync"
)

// ViewState is one consumer of decoded records, typically a UI panel. It
// binds at most one topic per message type and keeps the latest record
// of each type as its display state.
type ViewState struct {
	id int

	mu         sync.Mutex
	topics     map[string]string
	subscribed map[string]bool
	latest     map[string]*Record
	onUpdate   func(v *ViewState, typeName string)
}

func newViewState(id int) *ViewState {
	return &ViewState{
		id:         id,
		topics:     make(map[string]string),
		subscribed: make(map[string]bool),
		latest:     make(map[string]*Record),
	}
}

func (v *ViewState) ID() int {
	return v.id
}

// OnUpdate sets the redraw hook. It runs on the console event loop each
// time the display state of typeName changes, including the transition
// to no data.
func (v *ViewState) OnUpdate(fn func(v *ViewState, typeName string)) {
	v.mu.Lock()
	v.onUpdate = fn
	v.mu.Unlock()
}

// Topic returns the topic bound for typeName.
func (v *ViewState) Topic(typeName string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	topic, ok := v.topics[typeName]
	return topic, ok
}

// Topics returns a copy of the type name to topic bindings.
func (v *ViewState) Topics() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	result := make(map[string]string, len(v.topics))
	for k, t := range v.topics {
		result[k] = t
	}
	return result
}

// Subscribed reports whether the topic bound for typeName currently has a
// live subscription. A bound topic that is not subscribed is waiting for
// the directory to announce it.
func (v *ViewState) Subscribed(typeName string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.subscribed[typeName]
}

// Latest returns the record on display for typeName. ok is false while
// the view shows no data.
func (v *ViewState) Latest(typeName string) (rec *Record, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok = v.latest[typeName]
	return rec, ok
}

// bind records interest and returns the topic previously bound for the
// same type. cleared reports whether display state was dropped.
func (v *ViewState) bind(typeName, topic string) (prev string, cleared bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	prev = v.topics[typeName]
	if prev != topic {
		v.subscribed[typeName] = false
		_, cleared = v.latest[typeName]
		delete(v.latest, typeName)
	}
	v.topics[typeName] = topic
	return prev, cleared
}

func (v *ViewState) unbind(typeName string) (topic string, cleared bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	topic = v.topics[typeName]
	_, cleared = v.latest[typeName]
	delete(v.topics, typeName)
	delete(v.subscribed, typeName)
	delete(v.latest, typeName)
	return topic, cleared
}

func (v *ViewState) notify(typeName string) {
	v.mu.Lock()
	fn := v.onUpdate
	v.mu.Unlock()
	if fn != nil {
		fn(v, typeName)
	}
}

func (v *ViewState) setSubscribed(typeName, topic string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.topics[typeName] != topic {
		return false
	}
	v.subscribed[typeName] = true
	return true
}

// pending returns the types bound to topic that lack a subscription.
func (v *ViewState) pending(topic string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var result []string
	for typeName, t := range v.topics {
		if t == topic && !v.subscribed[typeName] {
			result = append(result, typeName)
		}
	}
	return result
}

// apply replaces the display state with rec if rec comes from the topic
// the view is subscribed to for its type.
func (v *ViewState) apply(rec *Record) bool {
	v.mu.Lock()
	if v.topics[rec.TypeName] != rec.Topic || !v.subscribed[rec.TypeName] {
		v.mu.Unlock()
		return false
	}
	v.latest[rec.TypeName] = rec
	fn := v.onUpdate
	v.mu.Unlock()
	if fn != nil {
		fn(v, rec.TypeName)
	}
	return true
}

// withdraw switches every type bound to topic to no data. Bindings are
// kept so the topic can be picked up again when it returns.
func (v *ViewState) withdraw(topic string) {
	v.mu.Lock()
	var changed []string
	for typeName, t := range v.topics {
		if t != topic {
			continue
		}
		v.subscribed[typeName] = false
		if _, ok := v.latest[typeName]; ok {
			delete(v.latest, typeName)
			changed = append(changed, typeName)
		}
	}
	fn := v.onUpdate
	v.mu.Unlock()
	if fn == nil {
		return
	}
	for _, typeName := range changed {
		fn(v, typeName)
	}
}
