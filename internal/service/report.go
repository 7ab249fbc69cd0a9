package service

import (
	"context"
	"fmt"
	"sort"

	"listing_syncer/internal/domain"
)

// Report compares the remote active set with local published records.
func (s *SyncService) Report(ctx context.Context) (*domain.Report, error) {
	var remote []string
	for page := 1; ; page++ {
		ids, err := s.source.ActiveIDs(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("fetch active ids page %d: %w", page, err)
		}
		remote = append(remote, ids.UUIDs...)
		if !ids.HasNext || len(ids.UUIDs) == 0 {
			break
		}
	}

	report := &domain.Report{
		RemoteActive:     len(remote),
		RemoteDuplicates: []string{},
		MissingLocally:   []string{},
		MissingRemotely:  []string{},
		GeneratedAt:      s.now(),
	}

	remoteSet := make(map[string]struct{}, len(remote))
	for _, id := range remote {
		if _, dup := remoteSet[id]; dup {
			report.RemoteDuplicates = append(report.RemoteDuplicates, id)
			continue
		}
		remoteSet[id] = struct{}{}
	}

	localSet := make(map[string]struct{})
	var afterID int64
	for {
		refs, err := s.records.PublishedAfter(ctx, afterID, s.config.ActiveBatchSize)
		if err != nil {
			return nil, fmt.Errorf("list published records: %w", err)
		}
		for _, ref := range refs {
			localSet[ref.UUID] = struct{}{}
			if _, ok := remoteSet[ref.UUID]; !ok {
				report.MissingRemotely = append(report.MissingRemotely, ref.UUID)
			}
		}
		if len(refs) < s.config.ActiveBatchSize {
			break
		}
		afterID = refs[len(refs)-1].ID
	}
	report.LocalPublished = len(localSet)

	for id := range remoteSet {
		if _, ok := localSet[id]; !ok {
			report.MissingLocally = append(report.MissingLocally, id)
		}
	}
	sort.Strings(report.MissingLocally)
	sort.Strings(report.MissingRemotely)

	return report, nil
}
