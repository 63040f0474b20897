// Package testbed builds small guest modules that speak the wasmosis ABI.
//
// The guests are hand-assembled core modules used by the engine and
// runtime tests, the example program and the CLI demo. Each exports
// "memory" and imports only the ABI functions it uses.
//
// Handle-creating guests place a one-entry function table at FuncTable and
// create handles with class ClassRef and user data UserData.
package testbed
