package dedup

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/extraction"
	"horse.fit/cargoscoop/internal/places"
	"horse.fit/cargoscoop/internal/textnorm"
)

// LoadCandidate is one extracted load with the message it came from.
type LoadCandidate struct {
	Source
	Load extraction.Load

	sender       *db.Sender
	senderLoaded bool
	route        *places.RouteMatch
}

func (c *LoadCandidate) paramsHashes() (exact, stripped string) {
	sender := senderKey(c.senderID())
	exact = paramsHash(c.Load.Origin, c.Load.Destination, sender, c.Hashes.Text)
	stripped = paramsHash(stripOrigin(c.Load.Origin), stripDestination(c.Load.Destination), sender, c.Hashes.Text)
	return exact, stripped
}

func (c *LoadCandidate) likeOrigin() string      { return stripOrigin(c.Load.Origin) }
func (c *LoadCandidate) likeDestination() string { return stripDestination(c.Load.Destination) }

func (c *LoadCandidate) loadSender(ctx context.Context, r *Resolver) (*db.Sender, error) {
	if c.senderLoaded {
		return c.sender, nil
	}
	s, err := r.sender(ctx, c.Source)
	if err != nil {
		return nil, fmt.Errorf("load sender: %w", err)
	}
	c.sender, c.senderLoaded = s, true
	return s, nil
}

// contactPhones is the candidate phone, the sender's profile phone and the
// first phone previously seen for the sender.
func (c *LoadCandidate) contactPhones(ctx context.Context, r *Resolver) ([]string, error) {
	s, err := c.loadSender(ctx, r)
	if err != nil {
		return nil, err
	}
	phones := []string{c.Load.Phone}
	if s != nil {
		if s.Phone != nil {
			phones = append(phones, *s.Phone)
		}
		if len(s.OtherPhones) > 0 {
			phones = append(phones, s.OtherPhones[0])
		}
	}
	return phoneSuffixes(phones...), nil
}

func (c *LoadCandidate) resolvedRoute(r *Resolver) places.RouteMatch {
	if c.route == nil {
		route := r.places.ResolveRoute(c.Load.Origin, c.Load.Destination)
		c.route = &route
	}
	return *c.route
}

// Match is what a strategy found: a record to merge into, records refreshed
// from the memo, or an echo.
type Match struct {
	Load    *db.Load
	Vehicle *db.Vehicle
	IDs     []int64
	Echo    bool
}

// LoadStrategy is one rule of the load cascade.
type LoadStrategy struct {
	Name  string
	Match func(ctx context.Context, r *Resolver, c *LoadCandidate) (Match, bool, error)
}

// LoadChain is the load cascade, most specific signal first.
func LoadChain() []LoadStrategy {
	return []LoadStrategy{
		{Name: "memo", Match: matchLoadMemo},
		{Name: "params_hash", Match: matchLoadParams},
		{Name: "phone_goods", Match: matchLoadPhoneGoods},
		{Name: "contact", Match: matchLoadContact},
		{Name: "geography", Match: matchLoadGeography},
		{Name: "description", Match: matchLoadDescription},
	}
}

func matchLoadMemo(ctx context.Context, r *Resolver, c *LoadCandidate) (Match, bool, error) {
	out, ok, err := r.recall(ctx, textnorm.KindLoad, c.Source)
	if err != nil || !ok {
		return Match{}, false, err
	}
	return Match{IDs: out.IDs}, true, nil
}

func found(l *db.Load, err error) (Match, bool, error) {
	if err != nil || l == nil {
		return Match{}, false, err
	}
	return Match{Load: l}, true, nil
}

func matchLoadParams(ctx context.Context, r *Resolver, c *LoadCandidate) (Match, bool, error) {
	exact, stripped := c.paramsHashes()
	return found(r.store.FindLoad(ctx, LoadQuery{
		ParamsHashes: []string{exact, stripped},
		Since:        r.now().Add(-r.windows.Params),
	}))
}

func matchLoadPhoneGoods(ctx context.Context, r *Resolver, c *LoadCandidate) (Match, bool, error) {
	goods := textnorm.CleanupGoods(c.Load.Goods)
	if !usablePhone(c.Load.Phone) || goods == "" {
		return Match{}, false, nil
	}
	return found(r.store.FindLoad(ctx, LoadQuery{
		OriginLike:    c.likeOrigin(),
		DestLike:      c.likeDestination(),
		PhoneSuffixes: []string{textnorm.StripCountryCode(c.Load.Phone)},
		Goods:         goods,
		LiveOnly:      true,
		Since:         r.now().Add(-r.windows.PhoneGoods),
	}))
}

func matchLoadContact(ctx context.Context, r *Resolver, c *LoadCandidate) (Match, bool, error) {
	phones, err := c.contactPhones(ctx, r)
	if err != nil {
		return Match{}, false, err
	}
	return found(r.store.FindLoad(ctx, LoadQuery{
		OriginLike:    c.likeOrigin(),
		DestLike:      c.likeDestination(),
		PhoneSuffixes: phones,
		SenderID:      c.senderID(),
		Since:         r.now().Add(-r.windows.Contact),
	}))
}

func matchLoadGeography(ctx context.Context, r *Resolver, c *LoadCandidate) (Match, bool, error) {
	route := c.resolvedRoute(r)
	if !route.Complete() {
		return Match{}, false, nil
	}
	phones, err := c.contactPhones(ctx, r)
	if err != nil {
		return Match{}, false, err
	}
	return found(r.store.FindLoad(ctx, LoadQuery{
		Route:         &route,
		PhoneSuffixes: phones,
		SenderID:      c.senderID(),
		Since:         r.now().Add(-r.windows.Geography),
	}))
}

// matchLoadDescription counts copies of the phone-stripped text under other
// text hashes. A copy by the same sender is a plain duplicate; a copy by
// someone else is an echo under the observed policy when the stored record
// has a phone or neither side does.
func matchLoadDescription(ctx context.Context, r *Resolver, c *LoadCandidate) (Match, bool, error) {
	if c.Text == "" || c.Hashes.NoPhone == "" {
		return Match{}, false, nil
	}
	copies, err := r.store.MarkEchoes(ctx, EchoQuery{
		OriginLike:  c.likeOrigin(),
		DestLike:    c.likeDestination(),
		NoPhoneHash: c.Hashes.NoPhone,
		ExceptHash:  c.Hashes.Text,
		Since:       r.now().Add(-r.windows.Description),
	})
	if err != nil || len(copies) == 0 {
		return Match{}, false, err
	}
	for i := range copies {
		if copies[i].SenderID != nil && *copies[i].SenderID == c.senderID() {
			return Match{Load: &copies[i]}, true, nil
		}
	}
	if r.echo != EchoObserved {
		return Match{}, false, nil
	}
	for _, l := range copies {
		if !blank(l.Phone) || c.Load.Phone == "" {
			return Match{Echo: true}, true, nil
		}
	}
	return Match{}, false, nil
}

// ResolveLoad runs the load cascade for one candidate and persists its
// outcome. Candidates without both route ends or without a sender are
// skipped.
func (r *Resolver) ResolveLoad(ctx context.Context, c LoadCandidate) (Outcome, error) {
	if strings.TrimSpace(c.Load.Origin) == "" || strings.TrimSpace(c.Load.Destination) == "" || c.senderID() == 0 {
		out := skipped("invalid")
		r.observe(string(textnorm.KindLoad), out)
		return out, nil
	}
	out, err := r.withLock(ctx, "load:"+c.Hashes.Text, func() (Outcome, error) {
		return r.resolveLoad(ctx, &c)
	})
	if err != nil {
		return Outcome{}, err
	}
	r.observe(string(textnorm.KindLoad), out)
	r.logger.Debug().
		Str("channel", c.Channel).
		Int64("message_id", c.MessageID).
		Str("ad_kind", string(textnorm.KindLoad)).
		Str("decision", string(out.Decision)).
		Str("rule", out.Rule).
		Ints64("ad_id", out.IDs).
		Msg("load resolved")
	return out, nil
}

func (r *Resolver) resolveLoad(ctx context.Context, c *LoadCandidate) (Outcome, error) {
	for _, s := range r.loadChain {
		m, ok, err := s.Match(ctx, r, c)
		if err != nil {
			return Outcome{}, fmt.Errorf("%s: %w", s.Name, err)
		}
		if !ok {
			continue
		}
		switch {
		case m.Echo:
			return Outcome{Decision: DecisionEcho, Rule: s.Name, IDs: []int64{SentinelID}}, nil
		case m.Load != nil:
			if err := r.mergeLoad(ctx, m.Load, c); err != nil {
				return Outcome{}, err
			}
			return Outcome{Decision: DecisionMerge, Rule: s.Name, IDs: []int64{m.Load.ID}}, nil
		default:
			return Outcome{Decision: DecisionMemo, Rule: s.Name, IDs: m.IDs}, nil
		}
	}

	load, err := r.newLoad(ctx, c)
	if err != nil {
		return Outcome{}, err
	}
	err = r.store.InsertLoad(ctx, load)
	if err == nil {
		return Outcome{Decision: DecisionInsert, Rule: "new", IDs: []int64{load.ID}}, nil
	}
	if !db.IsDuplicateKey(err) {
		return Outcome{}, fmt.Errorf("insert load: %w", err)
	}

	// Another writer stored the same route hash first; merge into it.
	winner, ferr := r.store.FindLoad(ctx, LoadQuery{ParamsHashes: []string{*load.ParamsHash}})
	if ferr != nil {
		return Outcome{}, fmt.Errorf("find load after duplicate insert: %w", ferr)
	}
	if winner == nil {
		return Outcome{}, fmt.Errorf("insert load: %w", err)
	}
	if err := r.mergeLoad(ctx, winner, c); err != nil {
		return Outcome{}, err
	}
	return Outcome{Decision: DecisionMerge, Rule: "params_hash_conflict", IDs: []int64{winner.ID}}, nil
}

// mergeLoad folds the candidate into a stored duplicate. Stored values win
// except for the ready date and the message reference.
func (r *Resolver) mergeLoad(ctx context.Context, l *db.Load, c *LoadCandidate) error {
	if l.IsDeleted {
		return nil
	}
	in := c.Load
	if l.DuplicationCount < duplicateURLCeiling {
		l.DuplicateURLs = append([]string{l.URL}, l.DuplicateURLs...)
	}
	if blank(l.CargoType) {
		l.CargoType = strPtr(in.CargoType)
	}
	if blank(l.CargoType2) {
		l.CargoType2 = strPtr(in.CargoType2)
	}
	if zero(l.Weight) {
		l.Weight = in.Weight
	}
	if zero(l.Volume) {
		l.Volume = in.Volume
	}
	if blank(l.Goods) {
		goods := textnorm.CleanupGoods(in.Goods)
		l.Goods = strPtr(goods)
		l.GoodsNorm = strPtr(strings.ToLower(goods))
	}
	if blank(l.PaymentType) {
		l.PaymentType = strPtr(in.PaymentType)
	}
	if l.Price == nil || *l.Price == 0 {
		l.Price = in.Price
	}
	if blank(l.Phone) {
		l.Phone = strPtr(in.Phone)
	}
	l.LoadReadyDate = in.ReadyDate

	messageID := c.MessageID
	l.MessageID = &messageID
	l.Channel = c.Channel
	l.URL = c.URL()
	l.PublishedAt = c.Published
	l.DuplicationCount++
	if l.IsArchived && l.DuplicationCount < unarchiveCounterCeiling && l.ExpirationCount < unarchiveExpirationCeiling {
		l.IsArchived = false
	}
	if err := r.store.SaveLoad(ctx, l); err != nil {
		return fmt.Errorf("save merged load %d: %w", l.ID, err)
	}
	return nil
}

// newLoad builds the record for a load no rule matched.
func (r *Resolver) newLoad(ctx context.Context, c *LoadCandidate) (*db.Load, error) {
	in := c.Load
	origin, destination := in.Origin, in.Destination
	local := containsWord(localLoadWords, origin) || containsWord(localLoadWords, destination) ||
		containsWord(localLoadWords, in.Goods)
	if local {
		destination = origin
	}
	route := r.places.ResolveRoute(origin, destination)

	sender, err := c.loadSender(ctx, r)
	if err != nil {
		return nil, err
	}
	senderID := c.senderID()

	phones := []string{in.Phone}
	if sender != nil {
		phones = append(phones, sender.OtherPhones...)
	}
	owned, err := r.store.CountContactLoads(ctx, senderID, phoneSuffixes(phones...), likelyOwnerCounterCeiling)
	if err != nil {
		return nil, fmt.Errorf("count sender loads: %w", err)
	}

	phone := messagePhone(in.Phone, c.Text)
	if sender != nil && phone != "" {
		if err := r.store.AddSenderPhone(ctx, sender.ID, phone); err != nil {
			return nil, fmt.Errorf("record sender phone: %w", err)
		}
	}

	goods := textnorm.CleanupGoods(in.Goods)
	exact, _ := c.paramsHashes()
	messageID := c.MessageID
	paymentType := in.PaymentType
	if paymentType == "" {
		paymentType = extraction.TruckNotSpecified
	}

	l := &db.Load{
		Origin:               origin,
		Destination:          destination,
		OriginNorm:           strings.ToLower(origin),
		DestinationNorm:      strings.ToLower(destination),
		OriginCityID:         route.OriginCityID,
		OriginCountryID:      route.OriginCountryID,
		DestinationCityID:    route.DestinationCityID,
		DestinationCountryID: route.DestinationCountryID,
		IsLocalLoad:          local,
		CargoType:            strPtr(in.CargoType),
		CargoType2:           strPtr(in.CargoType2),
		Weight:               in.Weight,
		Volume:               in.Volume,
		Price:                in.Price,
		Prepayment:           in.Prepayment,
		PaymentType:          &paymentType,
		Goods:                strPtr(goods),
		GoodsNorm:            strPtr(strings.ToLower(goods)),
		LoadReadyDate:        in.ReadyDate,
		IsRefrigerated:       in.Refrigerated,
		LoadingSide:          strPtr(in.LoadingSide),
		CustomsLocation:      strPtr(in.CustomsLocation),
		IsHazardous:          in.Hazardous,
		IsDagruz:             in.Dagruz,
		RequiredTrucks:       in.RequiredTrucks,
		Phone:                strPtr(phone),
		IsLikelyOwner:        owned < likelyOwnerMaxAds && utf8.RuneCountInString(c.Text) < likelyOwnerMaxLength,
		Channel:              c.Channel,
		MessageID:            &messageID,
		URL:                  c.URL(),
		DuplicateURLs:        []string{},
		PublishedAt:          c.Published,
		Description:          c.Text,
		Language:             languageOrUnknown(c.Language),
		TextHash:             c.Hashes.Text,
		ParamsHash:           &exact,
		NoPhoneHash:          c.Hashes.NoPhone,
	}
	if senderID != 0 {
		l.SenderID = &senderID
	}
	if sender != nil {
		owner := sender.ID
		l.OwnerID = &owner
	}
	if goods != "" {
		if good, ok := r.places.MatchGoods(goods); ok {
			l.GoodID = &good.ID
		}
	}
	if route.OriginCityID != nil && route.DestinationCityID != nil {
		d, err := r.store.Distance(ctx, *route.OriginCityID, *route.DestinationCityID)
		if err != nil {
			return nil, fmt.Errorf("look up distance: %w", err)
		}
		if d != nil {
			l.Distance = &d.DistanceMeters
			l.DistanceSeconds = &d.DurationSeconds
		}
	}
	return l, nil
}

func languageOrUnknown(lang string) string {
	if lang == "" {
		return "und"
	}
	return lang
}
