package lifecycle

import (
	"context"
	"fmt"

	"horse.fit/cargoscoop/internal/globaltime"
)

const (
	loadRecheckDays          = 3.1
	loadRecheckCounterCeil   = 50
	loadRecheckLimitNight    = 80
	loadRecheckLimitDay      = 45
	vehicleRecheckDays       = 2.2
	vehicleRecheckLimitNight = 15
	vehicleRecheckLimitDay   = 6
)

// RecheckReport counts the ads confirmed and retired by one recheck.
type RecheckReport struct {
	LoadsConfirmed    int
	LoadsRetired      int
	VehiclesConfirmed int
	VehiclesRetired   int
}

// Recheck asks the source whether the channel still carries the messages of
// its oldest recently touched ads. Present ads are refreshed; missing ones
// are archived and deleted.
func (m *Manager) Recheck(ctx context.Context, src MessageSource, channel string) (RecheckReport, error) {
	var report RecheckReport
	now := m.now()
	night := globaltime.IsLowTraffic(now)

	loadLimit, vehicleLimit := loadRecheckLimitDay, vehicleRecheckLimitDay
	if night {
		loadLimit, vehicleLimit = loadRecheckLimitNight, vehicleRecheckLimitNight
	}

	loads, err := m.store.RecheckLoads(ctx, channel, globaltime.DaysAgo(now, loadRecheckDays), loadRecheckCounterCeil, loadLimit)
	if err != nil {
		return report, fmt.Errorf("select loads to recheck: %w", err)
	}
	loadRefs := make([]adRef, 0, len(loads))
	for _, l := range loads {
		if l.MessageID != nil {
			loadRefs = append(loadRefs, adRef{id: l.ID, messageID: *l.MessageID})
		}
	}
	present, missing, err := split(ctx, src, channel, loadRefs)
	if err != nil {
		return report, fmt.Errorf("recheck loads: %w", err)
	}
	if err := m.store.RefreshLoads(ctx, present); err != nil {
		return report, err
	}
	if err := m.store.RetireLoads(ctx, missing); err != nil {
		return report, err
	}
	report.LoadsConfirmed, report.LoadsRetired = len(present), len(missing)
	m.observe(KindLoad, "recheck", len(missing))

	vehicles, err := m.store.RecheckVehicles(ctx, channel, globaltime.DaysAgo(now, vehicleRecheckDays), vehicleLimit)
	if err != nil {
		return report, fmt.Errorf("select vehicles to recheck: %w", err)
	}
	vehicleRefs := make([]adRef, 0, len(vehicles))
	for _, v := range vehicles {
		if v.MessageID != nil {
			vehicleRefs = append(vehicleRefs, adRef{id: v.ID, messageID: *v.MessageID})
		}
	}
	present, missing, err = split(ctx, src, channel, vehicleRefs)
	if err != nil {
		return report, fmt.Errorf("recheck vehicles: %w", err)
	}
	if err := m.store.RefreshVehicles(ctx, present); err != nil {
		return report, err
	}
	if err := m.store.RetireVehicles(ctx, missing); err != nil {
		return report, err
	}
	report.VehiclesConfirmed, report.VehiclesRetired = len(present), len(missing)
	m.observe(KindVehicle, "recheck", len(missing))

	m.logger.Debug().
		Str("channel", channel).
		Int("loads_confirmed", report.LoadsConfirmed).
		Int("loads_retired", report.LoadsRetired).
		Int("vehicles_confirmed", report.VehiclesConfirmed).
		Int("vehicles_retired", report.VehiclesRetired).
		Msg("recheck done")
	return report, nil
}

type adRef struct {
	id        int64
	messageID int64
}

// split partitions refs by whether the source still returns their message.
func split(ctx context.Context, src MessageSource, channel string, refs []adRef) (present, missing []int64, err error) {
	if len(refs) == 0 {
		return nil, nil, nil
	}
	ids := make([]int64, len(refs))
	for i, r := range refs {
		ids[i] = r.messageID
	}
	msgs, err := src.MessagesByID(ctx, channel, ids)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[int64]struct{}, len(msgs))
	for _, msg := range msgs {
		seen[msg.ID] = struct{}{}
	}
	for _, r := range refs {
		if _, ok := seen[r.messageID]; ok {
			present = append(present, r.id)
		} else {
			missing = append(missing, r.id)
		}
	}
	return present, missing, nil
}
