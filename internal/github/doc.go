// Package github fetches pull request diffs and posts review results back as
// pull request reviews. It wraps go-github and converts API failures into
// *FetchError values that carry a coarse kind for status mapping.
package github
