package asynclazy

// Opts is used to configure an AsyncLazy via the New function.
type Opts struct {
	// Scheduler, when provided, runs the value factory as a joinable unit of work so
	// that a synchronous Get from the scheduler's own pumping goroutine cannot
	// deadlock against the factory.  May be nil, in which case the factory runs on
	// an ordinary goroutine and no special join step applies.
	Scheduler Scheduler
}
