// Package crawler assembles the full case tree of a litigant from the
// judicial API: cases, their movements per court, the incidents of each
// movement, and the docket entries and parties of each incident.
package crawler
