// Package timers содержит реестр отложенных одноразовых задач, привязанных к ключу.
package timers

import (
	"sync"
	"time"
)

type entry struct {
	timer *time.Timer
}

// Registry хранит не более одного активного таймера на ключ.
// Заменённый или отменённый таймер не выполняется; сработавший таймер освобождает слот.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	stopped bool
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Schedule запускает fn через d, заменяя ранее запланированный таймер с тем же ключом.
// После Stop вызов ничего не делает и возвращает false.
func (r *Registry) Schedule(key string, d time.Duration, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return false
	}

	if prev, ok := r.entries[key]; ok {
		prev.timer.Stop()
	}

	e := &entry{}
	e.timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		// таймер мог быть заменён или отменён, пока ждал блокировку
		if cur, ok := r.entries[key]; !ok || cur != e {
			r.mu.Unlock()
			return
		}
		delete(r.entries, key)
		r.mu.Unlock()

		fn()
	})
	r.entries[key] = e

	return true
}

// Cancel отменяет таймер по ключу. Отмена несуществующего таймера — не ошибка.
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.entries, key)
	return true
}

func (r *Registry) pending(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[key]
	return ok
}

func (r *Registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Stop отменяет все таймеры и запрещает планирование новых.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, key)
	}
	r.stopped = true
}
