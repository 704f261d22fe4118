// Command drivescore runs the driving-simulation telemetry and scoring
// service.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
