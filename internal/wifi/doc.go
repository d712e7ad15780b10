// Package wifi keeps the node associated with one of an ordered list of
// wireless networks.
//
// The Associator walks the candidate list cyclically: each candidate gets a
// bounded window to reach Connected, after which the radio is disconnected and
// the next candidate is tried. There is no overall timeout; EnsureAssociated
// returns only once the link is up or the context is cancelled. The position
// in the list survives between calls so a node that lost its link resumes with
// the network it was last trying.
//
// Two Radio drivers are provided:
//   - NMCLI drives NetworkManager through the nmcli command line tool
//   - SimRadio associates instantly with a configured set of reachable SSIDs
package wifi
