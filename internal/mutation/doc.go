// Package mutation applies add, update and delete requests to the durable
// store and hands each confirmed change to the broadcast path.
//
// Every call follows one shape: validate, write to the store, and only once
// the write is confirmed publish a MutationEvent. Writes for a group run in
// that group's lane, so the duplicate check of one add cannot interleave
// with another mutation of the same group.
package mutation
