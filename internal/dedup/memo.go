package dedup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"horse.fit/cargoscoop/internal/textnorm"
)

const (
	LoadMemoPrefix    = "load-message:"
	VehicleMemoPrefix = "vehicle-message:"

	memoRefreshTTL = 5 * 24 * time.Hour
	loadMemoTTL    = 8 * 24 * time.Hour
	vehicleMemoTTL = 6 * 24 * time.Hour
)

func memoPrefix(kind textnorm.Kind) string {
	if kind == textnorm.KindVehicle {
		return VehicleMemoPrefix
	}
	return LoadMemoPrefix
}

// rememberedIDs reads the memo under the first hash variant that has one.
// The sentinel and malformed entries are dropped.
func (r *Resolver) rememberedIDs(ctx context.Context, kind textnorm.Kind, h textnorm.Hashes) ([]int64, error) {
	prefix := memoPrefix(kind)
	for _, hash := range h.Variants() {
		if hash == "" {
			continue
		}
		raw, ok, err := r.cache.Get(ctx, prefix+hash)
		if err != nil {
			return nil, fmt.Errorf("read memo: %w", err)
		}
		if ok && raw != "" {
			return parseIDs(raw), nil
		}
	}
	return nil, nil
}

func parseIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id == SentinelID || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// Recall handles a message whose text was already resolved. The remembered
// records that still exist get the new message reference and a counter
// bump, and the memo is refreshed. A memo holding only the sentinel, or
// records that are gone, reports false so the message is resolved again.
func (r *Resolver) Recall(ctx context.Context, kind textnorm.Kind, src Source) (Outcome, bool, error) {
	out, ok, err := r.recall(ctx, kind, src)
	if ok {
		r.observe(string(kind), out)
	}
	return out, ok, err
}

func (r *Resolver) recall(ctx context.Context, kind textnorm.Kind, src Source) (Outcome, bool, error) {
	ids, err := r.rememberedIDs(ctx, kind, src.Hashes)
	if err != nil || len(ids) == 0 {
		return Outcome{}, false, err
	}

	exists := r.store.ExistingLoadIDs
	touch := r.store.TouchLoads
	if kind == textnorm.KindVehicle {
		exists = r.store.ExistingVehicleIDs
		touch = r.store.TouchVehicles
	}
	live, err := exists(ctx, ids)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("check remembered ids: %w", err)
	}
	if len(live) == 0 {
		return Outcome{}, false, nil
	}

	if err := touch(ctx, live, Touch{
		URL:       src.URL(),
		Channel:   src.Channel,
		MessageID: src.MessageID,
		Published: src.Published,
	}); err != nil {
		return Outcome{}, false, fmt.Errorf("refresh remembered records: %w", err)
	}
	if err := r.cache.Set(ctx, memoPrefix(kind)+src.Hashes.Text, formatIDs(live), memoRefreshTTL); err != nil {
		return Outcome{}, false, fmt.Errorf("refresh memo: %w", err)
	}

	return Outcome{Decision: DecisionMemo, Rule: "memo", IDs: live}, true, nil
}

// Remember stores the ids a text produced. Texts that produced nothing are
// remembered with the sentinel.
func (r *Resolver) Remember(ctx context.Context, kind textnorm.Kind, textHash string, ids []int64) error {
	if textHash == "" {
		return nil
	}
	ttl := loadMemoTTL
	if kind == textnorm.KindVehicle {
		ttl = vehicleMemoTTL
	}
	var kept []int64
	seen := map[int64]bool{}
	for _, id := range ids {
		if id > 0 && !seen[id] {
			seen[id] = true
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		kept = []int64{SentinelID}
	}
	if err := r.cache.Set(ctx, memoPrefix(kind)+textHash, formatIDs(kept), ttl); err != nil {
		return fmt.Errorf("write memo: %w", err)
	}
	return nil
}
