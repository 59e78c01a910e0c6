package cache

// Observer receives cache events.
type Observer interface {
	CacheLookup(source Source, hit bool)
	RemoteError()
	IntegrityFailure()
}

type nopObserver struct{}

func (nopObserver) CacheLookup(Source, bool) {}
func (nopObserver) RemoteError()             {}
func (nopObserver) IntegrityFailure()        {}
