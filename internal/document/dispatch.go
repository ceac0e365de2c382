package document

import (
	"slices"
	"strings"
)

// dispatch delivers queued notifications until the book is closed, then
// drains whatever is left.
func (b *Book) dispatch() {
	defer b.wg.Done()
	for {
		select {
		case <-b.wake:
			b.drain()
		case <-b.ctx.Done():
			b.drain()
			return
		}
	}
}

func (b *Book) drain() {
	for {
		b.queueMu.Lock()
		batch := b.queue
		b.queue = nil
		b.queueMu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			b.deliver(fn)
		}
	}
}

func (b *Book) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "panic", r)
		}
	}()
	fn()
}

func (b *Book) enqueue(fn func()) {
	b.queueMu.Lock()
	b.queue = append(b.queue, fn)
	b.queueMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// publish queues one delivery per event. Handlers are resolved at delivery
// time so that an unsubscribed handler receives nothing further.
func (b *Book) publish(ch changes) {
	for _, ev := range ch.tables {
		ev := ev
		b.enqueue(func() {
			for _, fn := range b.tableHandlersFor(ev.Table) {
				fn(ev)
			}
		})
	}
	for _, ev := range ch.bindings {
		ev := ev
		b.enqueue(func() {
			for _, fn := range b.bindingHandlersFor(ev.Binding) {
				fn(ev)
			}
		})
	}
}

func (b *Book) onTableChanged(table string, fn TableChangedHandler) func() {
	key := strings.ToLower(table)

	b.handlersMu.Lock()
	id := b.nextHandler
	b.nextHandler++
	if b.tableHandlers[key] == nil {
		b.tableHandlers[key] = make(map[int]TableChangedHandler)
	}
	b.tableHandlers[key][id] = fn
	b.handlersMu.Unlock()

	return func() {
		b.handlersMu.Lock()
		defer b.handlersMu.Unlock()
		delete(b.tableHandlers[key], id)
	}
}

func (b *Book) onBindingDataChanged(binding string, fn BindingDataChangedHandler) func() {
	key := strings.ToLower(binding)

	b.handlersMu.Lock()
	id := b.nextHandler
	b.nextHandler++
	if b.bindingHandlers[key] == nil {
		b.bindingHandlers[key] = make(map[int]BindingDataChangedHandler)
	}
	b.bindingHandlers[key][id] = fn
	b.handlersMu.Unlock()

	return func() {
		b.handlersMu.Lock()
		defer b.handlersMu.Unlock()
		delete(b.bindingHandlers[key], id)
	}
}

// tableHandlersFor returns the table's handlers in registration order.
func (b *Book) tableHandlersFor(table string) []TableChangedHandler {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	hs := b.tableHandlers[strings.ToLower(table)]
	return orderedHandlers(hs)
}

func (b *Book) bindingHandlersFor(binding string) []BindingDataChangedHandler {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	hs := b.bindingHandlers[strings.ToLower(binding)]
	return orderedHandlers(hs)
}

func orderedHandlers[H any](hs map[int]H) []H {
	ids := make([]int, 0, len(hs))
	for id := range hs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]H, len(ids))
	for i, id := range ids {
		out[i] = hs[id]
	}
	return out
}
