// Package graph defines the guide script produced by evaluating a rig script.
// A Script holds one Node per declared guide, linked by name to the guide it
// hangs under and to the guides it references, plus the build requests.
// Each evaluation produces a new Script; nothing mutates a Script after the
// evaluation that built it returns.
package graph
