package notify

import "fmt"

// Event is a lifecycle notification delivered to live subscribers. The JSON
// tags describe the wire payload; name and id travel in their own frame
// fields and heartbeats never carry a payload at all.
type Event struct {
	ID        string      `json:"-"`
	Name      string      `json:"-"`
	CaseID    string      `json:"case_id"`
	Status    string      `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	Heartbeat bool        `json:"-"`
}

// eventID formats the per-case monotonic sequence number as an event id that
// clients can use for resumption bookkeeping.
func eventID(seq uint64) string {
	return fmt.Sprintf("evt_%d", seq)
}
