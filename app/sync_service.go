package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"sheetcrm/adapters/excel"
	"sheetcrm/ports"
)

// Action is the transfer decision a sync pass took.
type Action string

const (
	ActionDownload Action = "download"
	ActionUpload   Action = "upload"
	ActionNone     Action = "none"
)

// syncTolerance absorbs clock and timestamp-format jitter between the
// local filesystem and the provider. Differences under it mean the two
// copies are already in sync.
const syncTolerance = 1000 * time.Millisecond

// SyncResult reports the outcome of one sync pass.
type SyncResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Action  Action `json:"action"`
}

// SyncStatus is a snapshot of the coordinator's state.
type SyncStatus struct {
	State             string    `json:"state"`
	ProviderAvailable bool      `json:"providerAvailable"`
	LastSyncedAt      time.Time `json:"lastSyncedAt"`
}

// SyncService keeps the local document and the provider-hosted remote
// copy eventually consistent by comparing modification timestamps. It
// never merges content: the newer side wins wholesale.
type SyncService struct {
	store    *excel.Store
	provider ports.RemoteProvider
	fileID   string

	// syncing is the reentrancy guard: one sync pass at a time,
	// concurrent triggers report busy instead of queueing.
	syncing atomic.Bool

	mu           sync.Mutex
	lastSyncedAt time.Time
}

// NewSyncService creates a coordinator for the given store and remote.
func NewSyncService(store *excel.Store, provider ports.RemoteProvider, fileID string) *SyncService {
	return &SyncService{
		store:    store,
		provider: provider,
		fileID:   fileID,
	}
}

// SyncNow runs one full two-way sync pass. A pass already in progress
// makes this a no-op reporting "already in progress".
func (s *SyncService) SyncNow(ctx context.Context) SyncResult {
	if !s.syncing.CompareAndSwap(false, true) {
		return SyncResult{Success: false, Message: "sync already in progress", Action: ActionNone}
	}
	defer s.syncing.Store(false)

	return s.syncOnce(ctx)
}

// StartupSync is the sync pass run once at boot. Same decision table
// as SyncNow, with lifecycle logging.
func (s *SyncService) StartupSync(ctx context.Context) SyncResult {
	log.Info("[Sync] startup sync starting")
	result := s.SyncNow(ctx)
	if result.Success {
		log.Infof("[Sync] startup sync done: %s (%s)", result.Message, result.Action)
	} else {
		log.Warnf("[Sync] startup sync degraded: %s", result.Message)
	}
	return result
}

// Run drives periodic sync until ctx is cancelled. Periodic sync is
// one-directional: it uploads when the local file has changed since
// the last successful sync, and never downloads, so in-flight local
// edits cannot be clobbered. It does not start without a provider.
func (s *SyncService) Run(ctx context.Context, interval time.Duration) {
	if !s.provider.Available() {
		log.Info("[Sync] provider unavailable, periodic sync not started")
		return
	}

	log.Infof("[Sync] periodic sync every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("[Sync] periodic sync stopped")
			return
		case <-ticker.C:
			s.periodicUpload(ctx)
		}
	}
}

// Status reports the coordinator's current state.
func (s *SyncService) Status() SyncStatus {
	state := "idle"
	if s.syncing.Load() {
		state = "syncing"
	}
	s.mu.Lock()
	last := s.lastSyncedAt
	s.mu.Unlock()
	return SyncStatus{
		State:             state,
		ProviderAvailable: s.provider.Available(),
		LastSyncedAt:      last,
	}
}

func (s *SyncService) syncOnce(ctx context.Context) SyncResult {
	localMod := s.localModTime()
	remoteMod := s.remoteModTime(ctx)

	switch {
	case localMod == nil && remoteMod == nil:
		return SyncResult{Success: true, Message: "no document exists locally or remotely", Action: ActionNone}

	case localMod == nil:
		return s.download(ctx)

	case remoteMod == nil:
		// Keep the local copy; periodic sync may push it later.
		return SyncResult{Success: true, Message: "remote unavailable, keeping local copy", Action: ActionNone}

	default:
		delta := localMod.Sub(*remoteMod)
		if delta < 0 {
			delta = -delta
		}
		if delta < syncTolerance {
			s.recordSynced(*localMod)
			return SyncResult{Success: true, Message: "local and remote already in sync", Action: ActionNone}
		}
		if remoteMod.After(*localMod) {
			return s.download(ctx)
		}
		return s.upload(ctx)
	}
}

// periodicUpload pushes the local file when its modification time has
// advanced past the timestamp recorded at the last successful sync.
func (s *SyncService) periodicUpload(ctx context.Context) {
	if !s.syncing.CompareAndSwap(false, true) {
		return
	}
	defer s.syncing.Store(false)

	localMod := s.localModTime()
	if localMod == nil {
		return
	}
	s.mu.Lock()
	last := s.lastSyncedAt
	s.mu.Unlock()
	if !localMod.After(last) {
		return
	}

	result := s.upload(ctx)
	if !result.Success {
		log.Warnf("[Sync] periodic upload failed: %s", result.Message)
	}
}

func (s *SyncService) download(ctx context.Context) SyncResult {
	path := s.store.Path()
	tmpPath := path + ".sync"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Errorf("[Sync] could not create document directory: %v", err)
		return SyncResult{Success: false, Message: fmt.Sprintf("create document directory failed: %v", err), Action: ActionDownload}
	}
	if err := s.provider.Download(ctx, s.fileID, tmpPath); err != nil {
		os.Remove(tmpPath)
		log.Errorf("[Sync] download failed, keeping local copy: %v", err)
		return SyncResult{Success: false, Message: fmt.Sprintf("download failed: %v", err), Action: ActionDownload}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		log.Errorf("[Sync] could not replace local document: %v", err)
		return SyncResult{Success: false, Message: fmt.Sprintf("replace local document failed: %v", err), Action: ActionDownload}
	}

	// The file changed underneath the store.
	s.store.Invalidate()
	if mod := s.localModTime(); mod != nil {
		s.recordSynced(*mod)
	}
	log.Infof("[Sync] downloaded remote copy to %s", path)
	return SyncResult{Success: true, Message: "remote copy downloaded", Action: ActionDownload}
}

func (s *SyncService) upload(ctx context.Context) SyncResult {
	path := s.store.Path()
	if err := s.provider.Upload(ctx, s.fileID, path, excel.MimeXLSX); err != nil {
		log.Errorf("[Sync] upload failed, local copy remains usable: %v", err)
		return SyncResult{Success: false, Message: fmt.Sprintf("upload failed: %v", err), Action: ActionUpload}
	}

	if mod := s.localModTime(); mod != nil {
		s.recordSynced(*mod)
	}
	log.Infof("[Sync] uploaded %s to remote", path)
	return SyncResult{Success: true, Message: "local copy uploaded", Action: ActionUpload}
}

func (s *SyncService) localModTime() *time.Time {
	info, err := os.Stat(s.store.Path())
	if err != nil {
		return nil
	}
	mod := info.ModTime()
	return &mod
}

// remoteModTime treats an unavailable or failing provider as "no
// remote timestamp", never as a fatal condition.
func (s *SyncService) remoteModTime(ctx context.Context) *time.Time {
	if !s.provider.Available() {
		return nil
	}
	meta, err := s.provider.GetMetadata(ctx, s.fileID)
	if err != nil {
		log.Warnf("[Sync] remote metadata unavailable: %v", err)
		return nil
	}
	return &meta.ModifiedTime
}

func (s *SyncService) recordSynced(at time.Time) {
	s.mu.Lock()
	s.lastSyncedAt = at
	s.mu.Unlock()
}
