// Package assetsync keeps the local display bundle in step with the remote source.
//
// Every file of the manifest is fetched concurrently from the remote base URL and
// written into the project directory only when the response status is exactly 200.
// A failing file never aborts the others; the run reports per-file outcomes and is
// considered successful when at least one file was synced.
package assetsync
