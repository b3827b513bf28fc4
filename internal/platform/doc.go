// Package platform contains filesystem and yt-dlp metadata helpers: file name
// sanitizing, media listing, cookie lookup, tool checks, video info parsing
// and playlist expansion.
package platform
