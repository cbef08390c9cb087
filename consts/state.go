package consts

// SimulationStatus is the lifecycle state of a simulation.
type SimulationStatus string

const (
	StatusIdle      SimulationStatus = "IDLE"
	StatusRunning   SimulationStatus = "RUNNING"
	StatusCompleted SimulationStatus = "COMPLETED"
)

// TickOutcome is the terminal state of one tick invocation.
type TickOutcome string

const (
	TickUnauthorized       TickOutcome = "UNAUTHORIZED"
	TickSkipped            TickOutcome = "SKIPPED"
	TickNoActiveSimulation TickOutcome = "NO_ACTIVE_SIMULATION"
	TickInvalidSymbol      TickOutcome = "INVALID_SYMBOL"
	TickSuccess            TickOutcome = "SUCCESS"
	TickInternalError      TickOutcome = "INTERNAL_ERROR"
)

// Skip reasons reported by the tick endpoint.
const (
	SkipWeekend          = "weekend"
	SkipHolidayPrefix    = "holiday: "
	SkipAlreadyProcessed = "already_processed"
)

const (
	DefaultDurationDays    = 21
	DefaultWeightTechnical = 50
	MinStartCapital        = 1000.0
	HourBucketLayout       = "2006-01-02T15"
)
