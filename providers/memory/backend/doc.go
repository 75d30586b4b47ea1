// Package backend opens a [memory.Store] from configuration. The variant is
// always chosen explicitly through [Config.Kind]; nothing is inferred from
// the environment.
package backend
