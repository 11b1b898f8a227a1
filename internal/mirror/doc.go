// Package mirror provides object stores for mirrored copies of external
// datasets: an S3 bucket for shared deployments and a local directory for
// single machines and tests.
package mirror
