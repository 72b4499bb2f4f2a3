package dedup

import (
	"context"
	"fmt"
	"strings"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/extraction"
	"horse.fit/cargoscoop/internal/places"
	"horse.fit/cargoscoop/internal/textnorm"
)

// VehicleCandidate is one extracted truck offer with its message.
type VehicleCandidate struct {
	Source
	Vehicle extraction.Vehicle
}

func (c *VehicleCandidate) paramsHash() string {
	return paramsHash(c.Vehicle.Origin, senderKey(c.senderID()), c.Hashes.Text)
}

type VehicleStrategy struct {
	Name  string
	Match func(ctx context.Context, r *Resolver, c *VehicleCandidate) (Match, bool, error)
}

// VehicleChain is the shorter cascade used for truck offers.
func VehicleChain() []VehicleStrategy {
	return []VehicleStrategy{
		{Name: "memo", Match: matchVehicleMemo},
		{Name: "params_hash", Match: matchVehicleParams},
		{Name: "phone_origin", Match: matchVehiclePhoneOrigin},
	}
}

func matchVehicleMemo(ctx context.Context, r *Resolver, c *VehicleCandidate) (Match, bool, error) {
	out, ok, err := r.recall(ctx, textnorm.KindVehicle, c.Source)
	if err != nil || !ok {
		return Match{}, false, err
	}
	return Match{IDs: out.IDs}, true, nil
}

func foundVehicle(v *db.Vehicle, err error) (Match, bool, error) {
	if err != nil || v == nil {
		return Match{}, false, err
	}
	return Match{Vehicle: v}, true, nil
}

func matchVehicleParams(ctx context.Context, r *Resolver, c *VehicleCandidate) (Match, bool, error) {
	return foundVehicle(r.store.FindVehicle(ctx, VehicleQuery{ParamsHash: c.paramsHash(), LiveOnly: true}))
}

func matchVehiclePhoneOrigin(ctx context.Context, r *Resolver, c *VehicleCandidate) (Match, bool, error) {
	if !usablePhone(c.Vehicle.Phone) {
		return Match{}, false, nil
	}
	return foundVehicle(r.store.FindVehicle(ctx, VehicleQuery{
		Origin:      c.Vehicle.Origin,
		PhoneSuffix: textnorm.StripCountryCode(c.Vehicle.Phone),
		Since:       r.now().Add(-r.windows.Vehicle),
	}))
}

// ResolveVehicle runs the vehicle cascade for one candidate. Offers without
// an origin produce nothing; offers without a sender are remembered with the
// sentinel.
func (r *Resolver) ResolveVehicle(ctx context.Context, c VehicleCandidate) (Outcome, error) {
	kind := string(textnorm.KindVehicle)
	if strings.TrimSpace(c.Vehicle.Origin) == "" {
		out := Outcome{Decision: DecisionSkip, Rule: "no_origin"}
		r.observe(kind, out)
		return out, nil
	}
	if c.senderID() == 0 {
		out := skipped("no_sender")
		r.observe(kind, out)
		return out, nil
	}
	out, err := r.withLock(ctx, "vehicle:"+c.Hashes.Text, func() (Outcome, error) {
		return r.resolveVehicle(ctx, &c)
	})
	if err != nil {
		return Outcome{}, err
	}
	r.observe(kind, out)
	r.logger.Debug().
		Str("channel", c.Channel).
		Int64("message_id", c.MessageID).
		Str("ad_kind", kind).
		Str("decision", string(out.Decision)).
		Str("rule", out.Rule).
		Ints64("ad_id", out.IDs).
		Msg("vehicle resolved")
	return out, nil
}

func (r *Resolver) resolveVehicle(ctx context.Context, c *VehicleCandidate) (Outcome, error) {
	for _, s := range r.vehicleChain {
		m, ok, err := s.Match(ctx, r, c)
		if err != nil {
			return Outcome{}, fmt.Errorf("%s: %w", s.Name, err)
		}
		if !ok {
			continue
		}
		if m.Vehicle == nil {
			return Outcome{Decision: DecisionMemo, Rule: s.Name, IDs: m.IDs}, nil
		}
		if err := r.mergeVehicle(ctx, m.Vehicle, c); err != nil {
			return Outcome{}, err
		}
		return Outcome{Decision: DecisionMerge, Rule: s.Name, IDs: []int64{m.Vehicle.ID}}, nil
	}

	v, err := r.newVehicle(ctx, c)
	if err != nil {
		return Outcome{}, err
	}
	err = r.store.InsertVehicle(ctx, v)
	if err == nil {
		return Outcome{Decision: DecisionInsert, Rule: "new", IDs: []int64{v.ID}}, nil
	}
	if !db.IsDuplicateKey(err) {
		return Outcome{}, fmt.Errorf("insert vehicle: %w", err)
	}
	winner, ferr := r.store.FindVehicle(ctx, VehicleQuery{ParamsHash: *v.ParamsHash})
	if ferr != nil {
		return Outcome{}, fmt.Errorf("find vehicle after duplicate insert: %w", ferr)
	}
	if winner == nil {
		return Outcome{}, fmt.Errorf("insert vehicle: %w", err)
	}
	if err := r.mergeVehicle(ctx, winner, c); err != nil {
		return Outcome{}, err
	}
	return Outcome{Decision: DecisionMerge, Rule: "params_hash_conflict", IDs: []int64{winner.ID}}, nil
}

func (r *Resolver) mergeVehicle(ctx context.Context, v *db.Vehicle, c *VehicleCandidate) error {
	if v.IsDeleted {
		return nil
	}
	if blank(v.CargoType) {
		v.CargoType = strPtr(c.Vehicle.CargoType)
	}
	if zero(v.Weight) {
		v.Weight = c.Vehicle.Weight
	}
	if zero(v.Volume) {
		v.Volume = c.Vehicle.Volume
	}
	messageID := c.MessageID
	v.MessageID = &messageID
	v.Channel = c.Channel
	v.URL = c.URL()
	v.PublishedAt = c.Published
	v.IsArchived = false
	v.DuplicationCount++
	if err := r.store.SaveVehicle(ctx, v); err != nil {
		return fmt.Errorf("save merged vehicle %d: %w", v.ID, err)
	}
	return nil
}

func (r *Resolver) newVehicle(ctx context.Context, c *VehicleCandidate) (*db.Vehicle, error) {
	in := c.Vehicle
	senderID := c.senderID()
	messageID := c.MessageID
	hash := c.paramsHash()

	v := &db.Vehicle{
		Origin:                in.Origin,
		OriginNorm:            strings.ToLower(in.Origin),
		Destinations:          append([]string{}, in.Destinations...),
		DestinationCityIDs:    []int64{},
		DestinationCountryIDs: []int64{},
		CargoType:             strPtr(in.CargoType),
		CargoType2:            strPtr(in.CargoType2),
		Weight:                in.Weight,
		Volume:                in.Volume,
		AvailableTrucks:       in.AvailableTrucks,
		IsHazardous:           in.Hazardous,
		IsDagruz:              in.Dagruz,
		SenderID:              &senderID,
		Channel:               c.Channel,
		MessageID:             &messageID,
		URL:                   c.URL(),
		PublishedAt:           c.Published,
		Description:           c.Text,
		Language:              languageOrUnknown(c.Language),
		TextHash:              c.Hashes.Text,
		ParamsHash:            &hash,
	}

	if m, ok := r.places.Resolve(in.Origin, false); ok {
		city, country := routeIDs(m.ID, m.Kind == places.KindCity, m.CountryOf())
		v.OriginCityID, v.OriginCountryID = city, country
	}
	seenCountry := map[int64]bool{}
	for _, d := range in.Destinations {
		m, ok := r.places.Resolve(d, false)
		if !ok {
			continue
		}
		if m.Kind == places.KindCity {
			v.DestinationCityIDs = append(v.DestinationCityIDs, m.ID)
		}
		if country := m.CountryOf(); !seenCountry[country] {
			seenCountry[country] = true
			v.DestinationCountryIDs = append(v.DestinationCountryIDs, country)
		}
	}

	loads, err := r.store.CountSenderLoads(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("count sender loads: %w", err)
	}
	v.IsLikelyDispatcher = loads > dispatcherMinLoads

	sender, err := r.sender(ctx, c.Source)
	if err != nil {
		return nil, fmt.Errorf("load sender: %w", err)
	}
	phone := messagePhone(in.Phone, c.Text)
	v.Phone = strPtr(phone)
	if sender != nil {
		owner := sender.ID
		v.OwnerID = &owner
		if phone != "" {
			if err := r.store.AddSenderPhone(ctx, sender.ID, phone); err != nil {
				return nil, fmt.Errorf("record sender phone: %w", err)
			}
		}
	}
	return v, nil
}

func routeIDs(id int64, isCity bool, countryID int64) (city, country *int64) {
	if isCity {
		return &id, &countryID
	}
	return nil, &countryID
}
