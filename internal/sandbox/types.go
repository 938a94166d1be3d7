package sandbox

import (
	"errors"
	"time"
)

var (
	ErrFrameClosed = errors.New("sandbox frame is closed")
	ErrNoDocument  = errors.New("sandbox frame has no document")
)

// Config defines frame configuration
type Config struct {
	Timeout       time.Duration // Per-script execution timeout
	MaxCallStack  int           // Maximum JavaScript call stack depth
	EnableConsole bool          // Capture console.log/warn/error
	ConsoleLimit  int           // Maximum retained console entries per document
}

// Message is a value posted from the applet to its host window
type Message struct {
	Data   interface{} // Exported JavaScript value
	Origin string      // targetOrigin argument as given by the applet
}

// Listener receives messages posted by the applet
type Listener func(Message)

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, info, warn, error
	Message string    // Log message
	Time    time.Time // Timestamp
}

// DOMChange represents a DOM modification made by applet code
type DOMChange struct {
	Type     string      // set_text, set_html, set_attribute
	Selector string      // Best-effort element description
	Property string      // Property or attribute name
	Value    interface{} // New value
}

// DefaultConfig returns the default frame configuration
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		MaxCallStack:  1024,
		EnableConsole: true,
		ConsoleLimit:  500,
	}
}
