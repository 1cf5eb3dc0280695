// Package schema carries the application's released migration set and
// the operation catalog for the equipment-inspection database.
//
// Migration versions are authored once per schema change and never
// mutated after release; the highest version here is the target every
// startup migrates to. Version 5 is reserved: it shipped in a build that
// was pulled before release, and its number is never reused.
package schema
