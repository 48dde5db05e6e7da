/*
Package dsl provides a fluent builder for whole scenarios.

It is the programmatic counterpart of a replay script: instead of listing
commands one by one, callers describe branches, steps and relations and the
builder emits them as one batch command in an order the editor accepts.

Example usage:

	b := dsl.New("boiler", "Boiler start-up")

	b.Step("purge").Delay("PT30S").Go("ignite")
	b.Step("ignite").System("start", "burner").Go("check")
	b.Step("check").Condition("flame == true").
		When("flame == true", "run").
		When("flame == false", "abort")
	b.Step("run").Signal("running")
	b.Step("abort").Jump("purge")

	batch, err := b.Build()
	// ... ed.Execute(batch)
*/
package dsl
