// Package repository provides the persistence layer for ticket
// categories, bookings and tickets over database/sql.  Sentinel errors
// defined here let higher layers distinguish business rejections from
// infrastructure failures without string matching.  Handlers translate
// them into HTTP codes; services translate them into their own typed
// errors where a specific rejection reason must reach the caller.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrInsufficientCapacity is returned by TryReserve when the category is
// on sale but the requested quantity exceeds the remaining inventory.
var ErrInsufficientCapacity = errors.New("insufficient capacity")

// ErrSaleClosed is returned by TryReserve when the category is inactive
// or the current time falls outside its sale window.
var ErrSaleClosed = errors.New("sale closed")

// ErrConflict is returned when a conditional update found the row in a
// state that does not admit the requested transition, e.g. raising
// capacity below the reserved count.
var ErrConflict = errors.New("conflict")
