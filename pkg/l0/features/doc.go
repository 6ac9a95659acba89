// Package features implements the IO features of a board.
//
// A feature owns an ordered list of pins. When the link connects, every
// pin configuration is pushed to the board one at a time and retried
// until acknowledged. Once all pins are acknowledged the feature is
// configured and pin values flow between the board and the host pin sink.
package features
