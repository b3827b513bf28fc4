package model

// Package model defines domain data structures shared across the service:
// download jobs, their status enum, video metadata and playlist entries.
// Values are plain structs so they can be copied out of the registry and
// encoded to JSON directly.
