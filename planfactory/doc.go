// Package planfactory provides configuration and factories wiring catalogs, invokers, and executors from a single file- or env-provided config.
package planfactory
