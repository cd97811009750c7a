// Package mafia implements the room state synchronization and role
// distribution logic for the Mafia party game.
//
// Clients never talk to each other directly: every mutation is a
// read-modify-write against a shared room record in a Store, and every
// client derives its local view from the snapshots the store pushes back.
// A Session owns one participant's binding to one room and exposes the
// command surface (create, join, leave, ready, settings, start) to whatever
// presentation layer sits on top.
package mafia
