// Package broker correlates tool invocations with an independently polling worker.
//
// A submitter calls Submit and waits on the returned Pending handle. The worker
// long-polls with Poll, which hands each queued command to exactly one caller,
// and later reports the outcome with Complete or Fail. Every command carries a
// deadline; if neither report arrives in time the submitter receives a
// *TimeoutError and the command is evicted.
//
// Lifecycle:
//
//	queued --ClaimNext--> claimed --Complete/Fail--> completed | failed
//	queued  --deadline--> timed_out
//	claimed --deadline--> timed_out
//
// All store mutations are serialized under one mutex. Wake-ups are hints
// only: ClaimNext is the sole arbiter of which poller receives a command.
//
// State is held in memory and does not survive a restart.
package broker
