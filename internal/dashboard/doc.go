// Package dashboard holds the presentation state of the station display.
package dashboard
