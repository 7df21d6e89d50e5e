package updater

// Stage names one step of the update pipeline. Stages always advance in
// declaration order; any stage may transition to StageFailed.
type Stage int

const (
	// StageCheck compares local markers against the latest feed tags.
	StageCheck Stage = iota
	// StageUpToDate is the terminal stage when no component needs updating.
	StageUpToDate
	// StageFetchMetadata resolves the download URL of each component's asset.
	StageFetchMetadata
	// StageDownload streams both assets to a temporary directory.
	StageDownload
	// StageExtractPortable extracts the portable bundle into the staging directory.
	StageExtractPortable
	// StageReplaceNestedPayload empties the nested desktop payload directory.
	// Must run after the portable extraction and before the desktop one.
	StageReplaceNestedPayload
	// StageExtractDesktop extracts the desktop archive into the emptied nested directory.
	StageExtractDesktop
	// StagePersistMarkers writes both new version markers into the staging tree.
	StagePersistMarkers
	// StageActivate swaps the staging tree over the live install root.
	StageActivate
	// StageCleanup removes temporary archives and staging leftovers. Runs on every outcome.
	StageCleanup
	// StageDone is the terminal stage of a successful run.
	StageDone
	// StageFailed is the terminal stage of an aborted run.
	StageFailed
)

// String returns a stable machine-friendly stage name.
func (s Stage) String() string {
	switch s {
	case StageCheck:
		return "check"
	case StageUpToDate:
		return "up-to-date"
	case StageFetchMetadata:
		return "fetch-metadata"
	case StageDownload:
		return "download"
	case StageExtractPortable:
		return "extract-portable"
	case StageReplaceNestedPayload:
		return "replace-nested-payload"
	case StageExtractDesktop:
		return "extract-desktop"
	case StagePersistMarkers:
		return "persist-markers"
	case StageActivate:
		return "activate"
	case StageCleanup:
		return "cleanup"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}
