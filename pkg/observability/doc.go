/*
Package observability turns editor lifecycle hooks into logs and prometheus metrics.

Hooks from several sources can be merged with Combine and passed to
scenaria.WithHooks:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	ed, _ := scenaria.New("boiler", scenaria.WithHooks(observability.Combine(
		observability.LoggingHooks(logger),
		metrics.Hooks(),
	)))
*/
package observability
