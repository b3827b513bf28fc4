// Package httpapi exposes the download service over a small JSON API that
// clients poll for job progress.
package httpapi
