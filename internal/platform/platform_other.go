//go:build !linux && !windows && !darwin

package platform

// Current returns the strategy for the running OS
func Current() Platform { return Linux() }
