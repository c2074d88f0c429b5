package core

// Environment is the physics collaborator driven by the simulator.
type Environment interface {
	// PropagateForward advances the environment to epoch. updateRPStep sets how
	// many propagations may reuse the last reward/probability; 0 means they are
	// refreshed only when an action is applied.
	PropagateForward(epoch Epoch, updateRPStep int)
	// NextActionEpoch is the epoch at which the environment expects the next policy poll.
	NextActionEpoch() Epoch
	// State returns a snapshot of the current environment state
	State() StateSnapshot
	// Act applies a maneuver. A non-nil error means the maneuver was rejected
	// and the environment state is unchanged.
	Act(action Action) error
	Reward() float64
	FuelConsumption() float64
	TrajectoryDeviation() float64
	CollisionProbability() float64
	// Window returns the default simulation interval of the scenario.
	Window() (start, end Epoch)
}

// Policy decides which maneuver to perform given the current state.
type Policy interface {
	GetAction(state StateSnapshot) Action
}

// Observer receives one event per simulator iteration. Observers must not
// block; the simulator calls them synchronously.
type Observer interface {
	OnIteration(event IterationEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event IterationEvent)

func (f ObserverFunc) OnIteration(event IterationEvent) {
	f(event)
}
