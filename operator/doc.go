// Package operator provides core.Operator implementations: a triage Inbox
// ordered by classification urgency, a logging operator and a fan-out.
//
// Classification never changes routing. It only decides the order in which
// the human sees surfaced escalations and whether they are notified
// immediately.
package operator
