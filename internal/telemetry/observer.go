package telemetry

import "github.com/Aman-CERP/coderag/internal/search"

type fanout []search.Observer

// Fanout returns an observer that forwards every event to each non-nil
// observer, in order.
func Fanout(observers ...search.Observer) search.Observer {
	var f fanout
	for _, o := range observers {
		if o != nil {
			f = append(f, o)
		}
	}
	return f
}

func (f fanout) ObserveSearch(ev search.SearchEvent) {
	for _, o := range f {
		o.ObserveSearch(ev)
	}
}
