package core

type ServiceStatus string

const (
	StatusHealthy   ServiceStatus = "HEALTHY"
	StatusUnhealthy ServiceStatus = "UNHEALTHY"
	StatusUnknown   ServiceStatus = "UNKNOWN"
	StatusDegraded  ServiceStatus = "DEGRADED"
)

func (s ServiceStatus) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 3
	default:
		return 2
	}
}

// WorstStatus folds plugin statuses into one host status. A host with no
// plugins is UNKNOWN; unrecognised values rank between DEGRADED and UNHEALTHY.
func WorstStatus(statuses ...ServiceStatus) ServiceStatus {
	if len(statuses) == 0 {
		return StatusUnknown
	}
	worst := StatusHealthy
	for _, s := range statuses {
		if s.severity() > worst.severity() {
			worst = s
		}
	}
	if worst.severity() == 2 {
		return StatusUnknown
	}
	return worst
}
