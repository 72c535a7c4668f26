package platform

// Current returns the strategy for the running OS
func Current() Platform { return Windows() }
