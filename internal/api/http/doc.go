// Package http implements the applet server's routes: document and storage
// resources with Last-Modified markers, storage writes, and audio uploads
// that create or change applets through a generator.
package http
