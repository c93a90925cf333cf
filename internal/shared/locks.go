package shared

import "fmt"

// PeriodLockKey builds redis keys for period lifecycle critical sections.
func PeriodLockKey(scope string) string {
	return fmt.Sprintf("labdesk:period:%s:lock", scope)
}
