// Package staleness decides whether committed artifacts are current with HEAD.
//
// An artifact passes only when the most recent commit touching its path is
// HEAD itself. The check is meaningful only for a workflow where regenerated
// artifacts are amended into the same commit as the tape change that
// triggered them: an artifact last committed in any earlier commit is
// reported stale, even if nothing it depends on has changed since. An
// artifact with no history at all is stale as well.
package staleness
