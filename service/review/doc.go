// Package review defines the human-in-the-loop review-case model: the
// lifecycle state machine, revision tags for conditional reads, the error
// taxonomy and the Service contract implemented by concrete engines.
package review
