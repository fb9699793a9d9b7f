package domain

import (
	"fmt"
	"time"
)

// slaHours maps priority to resolution deadline in hours.
var slaHours = map[Priority]time.Duration{
	PriorityCritical: 4 * time.Hour,
	PriorityHigh:     24 * time.Hour,
	PriorityMedium:   48 * time.Hour,
	PriorityLow:      72 * time.Hour,
}

// SLADuration returns the resolution window for a priority. Unknown
// priorities get the P4 window.
func SLADuration(p Priority) time.Duration {
	if d, ok := slaHours[p]; ok {
		return d
	}
	return slaHours[PriorityLow]
}

// DueDate computes the SLA deadline for a ticket created at createdAt.
// The deadline is fixed at creation and never recomputed, even if the
// priority is edited later.
func DueDate(p Priority, createdAt time.Time) time.Time {
	return createdAt.Add(SLADuration(p))
}

// SLAStateKind classifies a ticket against its deadline.
type SLAStateKind int

const (
	SLAOnTime SLAStateKind = iota
	SLABreachedState
	SLAResolvedWithin
	SLAResolvedBreached
)

// SLAState is a point-in-time reading of the SLA clock. Computing it never
// mutates the ticket; callers decide whether to persist a breach flag.
type SLAState struct {
	Kind      SLAStateKind
	Remaining time.Duration // valid for SLAOnTime
	Overdue   time.Duration // valid for SLABreachedState
}

// EvaluateSLA classifies dueDate against now given whether the ticket's
// state is terminal and whether a breach was recorded while it was open.
func EvaluateSLA(dueDate time.Time, now time.Time, terminal bool, breached bool) SLAState {
	if terminal {
		if breached {
			return SLAState{Kind: SLAResolvedBreached}
		}
		return SLAState{Kind: SLAResolvedWithin}
	}
	if now.After(dueDate) {
		return SLAState{Kind: SLABreachedState, Overdue: now.Sub(dueDate)}
	}
	return SLAState{Kind: SLAOnTime, Remaining: dueDate.Sub(now)}
}

// String renders the reading the way the SLA dashboard displays it.
func (s SLAState) String() string {
	switch s.Kind {
	case SLAResolvedWithin:
		return "Resolved (Within SLA)"
	case SLAResolvedBreached:
		return "Resolved (SLA Breached)"
	case SLABreachedState:
		return fmt.Sprintf("BREACHED by %d hours", int(s.Overdue.Hours()))
	default:
		if s.Remaining < time.Hour {
			return fmt.Sprintf("%d minutes remaining", int(s.Remaining.Minutes()))
		}
		return fmt.Sprintf("%d hours remaining", int(s.Remaining.Hours()))
	}
}
