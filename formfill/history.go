package formfill

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/openfiling/formfill/types"
)

// VersionHistory returns every version of a document ascending by
// version. The version index is the primary source; when it is
// unavailable the history is reconstructed from the store's sidecar
// records, reconciled to the same ordering. An id with no versions
// anywhere is a NotFoundError.
func (e *Engine) VersionHistory(ctx context.Context, documentID string) ([]types.VersionRecord, error) {
	idxCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	recs, err := e.index.Records(idxCtx, documentID)
	cancel()
	if err != nil {
		e.logger.Warn("version index unavailable, falling back to store listing",
			"document_id", documentID, "error", err)
		recs, err = e.historyFromStore(ctx, documentID)
		if err != nil {
			return nil, err
		}
	}
	if len(recs) == 0 {
		return nil, &types.NotFoundError{Kind: "document", ID: documentID}
	}
	return recs, nil
}

// historyFromStore lists the document's sidecar records and rebuilds the
// ascending history from them.
func (e *Engine) historyFromStore(ctx context.Context, documentID string) ([]types.VersionRecord, error) {
	listCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	keys, err := e.objects.List(listCtx, versionRecordPrefix(documentID))
	cancel()
	if err != nil {
		return nil, wrapStoreErr("list", documentID, err)
	}

	recs := make([]types.VersionRecord, 0, len(keys))
	for _, key := range keys {
		getCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
		raw, err := e.objects.Get(getCtx, key)
		cancel()
		if err != nil {
			return nil, wrapStoreErr("get", key, err)
		}
		var rec types.VersionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse version record %s: %w", key, err)
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Version < recs[j].Version })
	return recs, nil
}

// LatestDescriptor presigns the newest version of a document.
func (e *Engine) LatestDescriptor(ctx context.Context, documentID string, ttl time.Duration) (types.Descriptor, error) {
	recs, err := e.VersionHistory(ctx, documentID)
	if err != nil {
		return types.Descriptor{}, err
	}
	return e.objects.Presign(recs[len(recs)-1].StorageKey, ttl)
}

func recordBytes(rec types.VersionRecord) ([]byte, error) {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal version record: %w", err)
	}
	return raw, nil
}
