package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/cargoscoop/internal/globaltime"
)

const (
	loadInstruction    = `given unstructured texts of Russian and Uzbek freight load info in YAML, convert it into the given structure. Do not translate the content. PROCESS EACH YAML "text" NODE SEPARATELY.`
	vehicleInstruction = `given unstructured texts of Russian and Uzbek freight driver info in YAML, convert it into the given structure. Do not translate the content. PROCESS EACH "text" NODE SEPARATELY`
)

// ErrLowQuality marks a result whose loads carry nothing beyond a route.
var ErrLowQuality = errors.New("low quality extraction")

// BatchObserver is told about every submitted batch.
type BatchObserver interface {
	ObserveBatch(kind string, items int, took time.Duration, err error)
}

// Extractor batches texts, submits them, and maps the structured answers
// back to input positions.
type Extractor struct {
	completer Completer
	logger    zerolog.Logger
	now       func() time.Time
	observer  BatchObserver
}

type Option func(*Extractor)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// WithClock fixes the reference time used for ready date validation.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

func WithObserver(o BatchObserver) Option {
	return func(e *Extractor) { e.observer = o }
}

func NewExtractor(completer Completer, opts ...Option) *Extractor {
	e := &Extractor{completer: completer, logger: zerolog.Nop(), now: globaltime.UTC}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractLoads extracts loads from texts. Results are keyed by the position
// of the text in the input. A failing batch is logged and skipped, its
// error joined into the returned one, and the other batches still count.
func (e *Extractor) ExtractLoads(ctx context.Context, texts []string) ([]LoadResult, error) {
	var (
		results []LoadResult
		errs    []error
	)
	for n, chunk := range Chunk(numbered(texts)) {
		got, err := e.loadBatch(ctx, chunk)
		if err != nil {
			e.logger.Warn().Err(err).Int("batch", n).Int("items", len(chunk)).Msg("load batch failed")
			errs = append(errs, fmt.Errorf("load batch %d: %w", n, err))
			continue
		}
		results = append(results, got...)
	}
	return results, errors.Join(errs...)
}

func (e *Extractor) loadBatch(ctx context.Context, chunk []Item) ([]LoadResult, error) {
	payload, err := Serialize(chunk)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	content, err := e.completer.Complete(ctx, Request{
		System:     loadInstruction,
		User:       prepareLoadPayload(payload),
		SchemaName: loadSchema.name,
		Schema:     loadSchema.Raw(),
	})
	if err == nil {
		var resp loadResponse
		if err = loadSchema.Decode([]byte(content), &resp); err == nil {
			e.observe("load", len(chunk), started, nil)
			return e.mapLoads(chunk, resp), nil
		}
	}
	e.observe("load", len(chunk), started, err)
	return nil, err
}

func (e *Extractor) mapLoads(chunk []Item, resp loadResponse) []LoadResult {
	known := make(map[int]bool, len(chunk))
	for _, it := range chunk {
		known[it.ID] = true
	}

	now := e.now()
	byID := make(map[int]*LoadResult)
	var order []int
	for _, msg := range resp.Messages {
		if !known[msg.ID] {
			e.logger.Debug().Int("id", msg.ID).Msg("answer for unknown batch item")
			continue
		}
		res, ok := byID[msg.ID]
		if !ok {
			res = &LoadResult{Index: msg.ID}
			byID[msg.ID] = res
			order = append(order, msg.ID)
		}
		phone := cleanPhone(msg.Phone)
		if res.Phone == "" {
			res.Phone = phone
		}
		for _, raw := range msg.Loads {
			if raw != nil {
				res.Loads = append(res.Loads, raw.toLoad(phone, now))
			}
		}
	}

	out := make([]LoadResult, 0, len(order))
	for _, id := range order {
		res := byID[id]
		res.LowQuality = lowQuality(res.Loads)
		if res.LowQuality {
			e.logger.Debug().Int("id", id).Int("loads", len(res.Loads)).Msg("low quality extraction")
		}
		out = append(out, *res)
	}
	return out
}

// lowQuality reports multi-load answers where no load has any detail.
func lowQuality(loads []Load) bool {
	if len(loads) <= 1 {
		return false
	}
	for _, l := range loads {
		if l.filled() {
			return false
		}
	}
	return true
}

// ExtractVehicles is ExtractLoads for truck availability offers.
func (e *Extractor) ExtractVehicles(ctx context.Context, texts []string) ([]VehicleResult, error) {
	var (
		results []VehicleResult
		errs    []error
	)
	for n, chunk := range Chunk(numbered(texts)) {
		got, err := e.vehicleBatch(ctx, chunk)
		if err != nil {
			e.logger.Warn().Err(err).Int("batch", n).Int("items", len(chunk)).Msg("vehicle batch failed")
			errs = append(errs, fmt.Errorf("vehicle batch %d: %w", n, err))
			continue
		}
		results = append(results, got...)
	}
	return results, errors.Join(errs...)
}

func (e *Extractor) vehicleBatch(ctx context.Context, chunk []Item) ([]VehicleResult, error) {
	payload, err := Serialize(chunk)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	content, err := e.completer.Complete(ctx, Request{
		System:     vehicleInstruction,
		User:       prepareVehiclePayload(payload),
		SchemaName: vehicleSchema.name,
		Schema:     vehicleSchema.Raw(),
	})
	if err == nil {
		var resp vehicleResponse
		if err = vehicleSchema.Decode([]byte(content), &resp); err == nil {
			e.observe("vehicle", len(chunk), started, nil)
			return mapVehicles(chunk, resp), nil
		}
	}
	e.observe("vehicle", len(chunk), started, err)
	return nil, err
}

func mapVehicles(chunk []Item, resp vehicleResponse) []VehicleResult {
	known := make(map[int]bool, len(chunk))
	for _, it := range chunk {
		known[it.ID] = true
	}
	byID := make(map[int]*VehicleResult)
	var order []int
	for _, msg := range resp.Messages {
		if !known[msg.ID] {
			continue
		}
		res, ok := byID[msg.ID]
		if !ok {
			res = &VehicleResult{Index: msg.ID}
			byID[msg.ID] = res
			order = append(order, msg.ID)
		}
		phone := cleanPhone(msg.Phone)
		if res.Phone == "" {
			res.Phone = phone
		}
		for _, raw := range msg.Vehicles {
			if raw != nil {
				res.Vehicles = append(res.Vehicles, raw.toVehicle(phone))
			}
		}
	}
	out := make([]VehicleResult, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func (e *Extractor) observe(kind string, items int, started time.Time, err error) {
	if e.observer != nil {
		e.observer.ObserveBatch(kind, items, time.Since(started), err)
	}
}

func numbered(texts []string) []Item {
	items := make([]Item, len(texts))
	for i, t := range texts {
		items[i] = Item{ID: i, Text: t}
	}
	return items
}
