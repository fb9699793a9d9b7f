package domain

// Priority is the derived ticket priority, P1 critical through P4 low.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
)

// priorityMatrix maps (impact, urgency) to priority:
//
//	impact\urgency |  1  |  2  |  3
//	---------------+-----+-----+-----
//	             1 |  P1 |  P2 |  P3
//	             2 |  P2 |  P3 |  P4
//	             3 |  P3 |  P4 |  P4
var priorityMatrix = map[[2]int]Priority{
	{1, 1}: PriorityCritical,
	{1, 2}: PriorityHigh,
	{1, 3}: PriorityMedium,
	{2, 1}: PriorityHigh,
	{2, 2}: PriorityMedium,
	{2, 3}: PriorityLow,
	{3, 1}: PriorityMedium,
	{3, 2}: PriorityLow,
	{3, 3}: PriorityLow,
}

// CalculatePriority derives a priority from the impact/urgency matrix.
// Inputs are validated before reaching here; out-of-range values fall back
// to PriorityLow.
func CalculatePriority(impact Impact, urgency Urgency) Priority {
	if p, ok := priorityMatrix[[2]int{int(impact), int(urgency)}]; ok {
		return p
	}
	return PriorityLow
}
