package simflash

// config holds the simulation tuning knobs.
type config struct {
	// eraseLatency is the number of SR reads reporting BSY after an
	// erase starts
	eraseLatency int

	// programLatency is the number of SR reads reporting BSY after a
	// program store
	programLatency int
}

func defaultConfig() config {
	return config{
		eraseLatency:   2,
		programLatency: 1,
	}
}

// Option is a functional option for configuring a Device.
type Option func(*config)

// WithEraseLatency sets how many status reads report BSY after an erase
// operation starts. A large value paired with a short driver busy
// timeout exercises the timeout path.
//
// Example:
//
//	dev, err := simflash.New(geometry.OneMegSingleBank,
//	    simflash.WithEraseLatency(1000000))
func WithEraseLatency(reads int) Option {
	return func(c *config) {
		if reads >= 0 {
			c.eraseLatency = reads
		}
	}
}

// WithProgramLatency sets how many status reads report BSY after a
// program store.
func WithProgramLatency(reads int) Option {
	return func(c *config) {
		if reads >= 0 {
			c.programLatency = reads
		}
	}
}
