// Package subprocess spawns supervised worker processes through the platform
// shell and reads their output line by line.
//
// Each process gets piped stdin, stdout, and stderr; nothing is inherited
// from the manager's console. One goroutine reads stdout and one reads
// stderr, handing every line to caller-supplied callbacks. A third goroutine
// reaps the process once both streams are exhausted.
package subprocess
