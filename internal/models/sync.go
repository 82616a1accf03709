package models

// SyncState identifies one stage of a synchronization pass. The
// orchestrator reports every transition through the UI callback.
type SyncState int

const (
	// StateIdle means no synchronization pass is running.
	StateIdle SyncState = iota

	// StateNoConfiguredService means no sync service is configured.
	StateNoConfiguredService

	// StateServerCreationFailed means the remote store could not be
	// constructed.
	StateServerCreationFailed

	// StateConnecting means the pass is connecting to the server.
	StateConnecting

	// StateAcquiringLock means the pass is claiming exclusive access.
	StateAcquiringLock

	// StateLocked means another client holds the lock.
	StateLocked

	// StatePrepareDownload covers update fetching and the early title
	// conflict scan.
	StatePrepareDownload

	// StateDownloading means remote updates are being applied locally.
	StateDownloading

	// StatePrepareUpload means local changes are being collected.
	StatePrepareUpload

	// StateUploading means local changes are being sent to the server.
	StateUploading

	// StateDeleteServerNotes means locally deleted notes are being
	// removed from the server.
	StateDeleteServerNotes

	// StateCommitting means the transaction is being committed.
	StateCommitting

	// StateSucceeded means the pass committed successfully.
	StateSucceeded

	// StateFailed means the pass failed.
	StateFailed

	// StateUserCancelled means the user cancelled the pass.
	StateUserCancelled
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNoConfiguredService:
		return "no_configured_service"
	case StateServerCreationFailed:
		return "server_creation_failed"
	case StateConnecting:
		return "connecting"
	case StateAcquiringLock:
		return "acquiring_lock"
	case StateLocked:
		return "locked"
	case StatePrepareDownload:
		return "prepare_download"
	case StateDownloading:
		return "downloading"
	case StatePrepareUpload:
		return "prepare_upload"
	case StateUploading:
		return "uploading"
	case StateDeleteServerNotes:
		return "delete_server_notes"
	case StateCommitting:
		return "committing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateUserCancelled:
		return "user_cancelled"
	default:
		return "unknown"
	}
}

// SyncOutcome classifies what happened to one note during a pass.
type SyncOutcome int

const (
	// OutcomeUploadNew means a never-synced note was uploaded.
	OutcomeUploadNew SyncOutcome = iota

	// OutcomeUploadModified means a locally modified note was uploaded.
	OutcomeUploadModified

	// OutcomeDownloadNew means a note was created from a remote update.
	OutcomeDownloadNew

	// OutcomeDownloadModified means a local note was updated in place.
	OutcomeDownloadModified

	// OutcomeDeleteFromServer means a local deletion was propagated.
	OutcomeDeleteFromServer

	// OutcomeDeleteFromClient means a remote deletion was applied.
	OutcomeDeleteFromClient
)

func (o SyncOutcome) String() string {
	switch o {
	case OutcomeUploadNew:
		return "upload_new"
	case OutcomeUploadModified:
		return "upload_modified"
	case OutcomeDownloadNew:
		return "download_new"
	case OutcomeDownloadModified:
		return "download_modified"
	case OutcomeDeleteFromServer:
		return "delete_from_server"
	case OutcomeDeleteFromClient:
		return "delete_from_client"
	default:
		return "unknown"
	}
}

// ConflictResolution is the user's answer to a note conflict.
type ConflictResolution int

const (
	// ResolveOverwrite replaces the local note with the remote update.
	ResolveOverwrite ConflictResolution = iota

	// ResolveRenameAndAccept renames the local note to a non-colliding
	// title and then applies the remote update as a separate note.
	ResolveRenameAndAccept

	// ResolveRenameKeepLocal renames the local note to a non-colliding
	// title; the renamed note uploads on the next pass.
	ResolveRenameKeepLocal

	// ResolveCancel aborts the synchronization pass.
	ResolveCancel
)

func (r ConflictResolution) String() string {
	switch r {
	case ResolveOverwrite:
		return "overwrite"
	case ResolveRenameAndAccept:
		return "rename_and_accept"
	case ResolveRenameKeepLocal:
		return "rename_keep_local"
	case ResolveCancel:
		return "cancel"
	default:
		return "unknown"
	}
}
