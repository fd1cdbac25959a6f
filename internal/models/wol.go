package models

import "time"

// WOLConfig holds per-host Wake-on-LAN configuration.
type WOLConfig struct {
	MACAddress    string
	BroadcastIP   string
	StabilizeWait time.Duration // wait after the packet before dialing
}

// WOLResult holds the result of a wake attempt.
type WOLResult struct {
	PacketSent   bool
	WaitDuration time.Duration
	Error        error
}
