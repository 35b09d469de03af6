// Package supervisor owns the lifecycle of the display server child process.
//
// States move stopped -> starting -> running, starting -> failed when the process
// cannot be launched or exits within the startup grace period, and running -> stopped
// on an explicit stop or when the process dies. failed is left only through an
// explicit start or restart. Lifecycle operations are serialized; status reads are
// never blocked by a start in progress.
package supervisor
