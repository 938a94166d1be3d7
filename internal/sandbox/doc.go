/*
Package sandbox provides the isolated rendering surface an applet runs in.

# Overview

A Frame hosts one applet document at a time inside a goja JavaScript runtime.
Every navigation discards the previous runtime and builds a fresh realm, so no
script state survives a reload. The realm exposes a small browser-like surface:

  - window (the global object) with scrollX/scrollY, scrollTo and onload
  - window.parent.postMessage for sandbox-to-host messages
  - a native in-memory localStorage, replaceable by injected scripts
  - a document proxy over the parsed markup (query, text and attribute access)
  - console output captured per frame

# Security Model

Sandboxed code cannot:
  - Reach require, process or any Node.js style module system
  - Schedule timers (setTimeout/setInterval are inert)
  - Touch the host except through postMessage
  - Run past the configured script timeout

# Usage Example

	frame := sandbox.New(sandbox.DefaultConfig(), logger)
	defer frame.Close()

	unsubscribe := frame.Subscribe(func(msg sandbox.Message) {
		log.Info("message from applet", zap.Any("data", msg.Data))
	})
	defer unsubscribe()

	err := frame.Navigate(ctx, html, func() {
		frame.ScrollTo(0, 240)
	})

# Message Delivery

Messages posted from JavaScript are queued and delivered to subscribers in
order on a dispatch goroutine owned by the frame, never on the goroutine
running the script.
*/
package sandbox
