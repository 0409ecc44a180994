// Package orchestrator runs rules end to end: service catalog load,
// translation, search, eligibility filtering, action dispatch, and run
// log bookkeeping. Each execution owns one run log row, and failures
// inside a rule are contained there so a batch of rules always
// continues past a broken member.
package orchestrator
