// Package remediation decides when to power-cycle the device in front of the
// link while it is away from its primary address.
//
// An excursion starts the moment the resolved address differs from the
// primary and ends when the primary is seen again. Within one excursion the
// controller moves through these phases:
//
//	at-primary -> away (timer running, attempts < max)
//	away       -> limit-reached (attempts == max)
//	any        -> at-primary (primary observed; attempts and timer cleared)
//
// The grace period is measured from the start of the excursion, so once it
// has elapsed one reset signal is sent per poll cycle until the limit is hit.
//
// State is a plain value. The controller never keeps it: callers pass the
// current State in and store the State that comes back.
package remediation
