// Package sshhost deploys applications onto plain hosts over SSH. The
// bootstrap payload is uploaded into a per-deployment unit directory
// under the configured workdir and executed with sh; a pid file and exit
// marker in the same directory drive status probes.
package sshhost
