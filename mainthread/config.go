package mainthread

// Opts is used to configure a Scheduler via the New function.
type Opts struct {
	// MaxQueueDepth controls the number of callbacks that can be queued before Post
	// blocks the caller.
	MaxQueueDepth int
}

func (o Opts) validate() {
	if o.MaxQueueDepth < 0 {
		panic("mainthread max queue depth must be 0 or greater")
	}
}
