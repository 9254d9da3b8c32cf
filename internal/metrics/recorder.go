package metrics

type ResolveRecorder interface {
	ObserveResolve(result string)
}

type NoopResolveRecorder struct{}

func (NoopResolveRecorder) ObserveResolve(result string) {}

type NotifyRecorder interface {
	ObserveDelivery(sink string, delivered bool)
}

type NoopNotifyRecorder struct{}

func (NoopNotifyRecorder) ObserveDelivery(sink string, delivered bool) {}

type MonitorRecorder interface {
	ObserveChange(kind string)
	ObserveAway(away bool)
	ObserveAttempts(attempts int)
	ObserveSignal(result string)
}

type NoopMonitorRecorder struct{}

func (NoopMonitorRecorder) ObserveChange(kind string)    {}
func (NoopMonitorRecorder) ObserveAway(away bool)        {}
func (NoopMonitorRecorder) ObserveAttempts(attempts int) {}
func (NoopMonitorRecorder) ObserveSignal(result string)  {}

type ReadinessRecorder interface {
	ObserveReadiness(ready bool)
}

type NoopReadinessRecorder struct{}

func (NoopReadinessRecorder) ObserveReadiness(ready bool) {}
