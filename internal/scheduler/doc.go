// Package scheduler drives periodic acquisition and display rotation.
//
// Three independent fixed-rate jobs run while the scheduler is started:
//
//   - poll: every PollInterval, read every sensor in metric order and append
//     each successful reading to the series store. The whole tick is skipped
//     while the hub is not connected; a failed read skips only its metric.
//   - rotate: every RotateInterval, advance the displayed chart.
//   - date: every DateRefreshInterval, hand the current time to the display.
//
// Manual navigation is forwarded through Navigate and does not reset the
// rotation timer.
package scheduler
