package observability

// CacheObserver receives resolver cache events.
type CacheObserver interface {
	ObserveLookup(cacheName string, hit bool)
	ObserveSweep(cacheName string, removed int)
}

// Observers fans cache events out to several observers, skipping nils.
type Observers []CacheObserver

// NewObservers drops nil entries.
func NewObservers(obs ...CacheObserver) Observers {
	var out Observers
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (o Observers) ObserveLookup(cacheName string, hit bool) {
	for _, ob := range o {
		ob.ObserveLookup(cacheName, hit)
	}
}

func (o Observers) ObserveSweep(cacheName string, removed int) {
	for _, ob := range o {
		ob.ObserveSweep(cacheName, removed)
	}
}
