// Package pshared implements process-shared mutex and condition variable
// objects on top of futex words, following the pthread object protocol:
// an attribute object is initialized, marked process-shared, used to
// initialize the object in place and then destroyed.
//
// Objects are plain structs meant to be embedded in shared memory. Zeroed
// memory is an uninitialized object; every operation on it fails with
// ErrNotInitialized instead of touching the futex word.
package pshared
