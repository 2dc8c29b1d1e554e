// Package sensor adapts the hub's bricklets to a single read capability.
//
// Each metric has one variant (Thermometer, Hygrometer, LightMeter,
// Barometer) that knows the bricklet's getter and fixed-point scaling.
// All of them expose the same Reader interface, so the scheduler polls
// them without knowing the wire details.
package sensor
