package httpapi

import (
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/cargoscoop/internal/db"
	"horse.fit/cargoscoop/internal/lifecycle"
	"horse.fit/cargoscoop/internal/query"
)

type loadSearchRequest struct {
	// UserID, when set, hides the ads this user marked as expired.
	UserID  *int64 `json:"user_id" validate:"omitempty,gt=0"`
	OwnerID *int64 `json:"owner_id" validate:"omitempty,gt=0"`

	OriginCityID         *int64 `json:"origin_city_id" validate:"omitempty,gt=0"`
	OriginCountryID      *int64 `json:"origin_country_id" validate:"omitempty,gt=0"`
	DestinationCityID    *int64 `json:"destination_city_id" validate:"omitempty,gt=0"`
	DestinationCountryID *int64 `json:"destination_country_id" validate:"omitempty,gt=0"`

	Lat             *float64 `json:"lat" validate:"required_with=Lng,omitempty,latitude"`
	Lng             *float64 `json:"lng" validate:"required_with=Lat,omitempty,longitude"`
	DestinationName string   `json:"destination_name" validate:"max=120"`

	CargoType string `json:"cargo_type" validate:"omitempty,oneof=not_specified isuzu small_isuzu big_isuzu reefer reefer-mode tented labo"`
	Dagruz    bool   `json:"dagruz"`
	Start     int    `json:"start" validate:"gte=0"`
}

type vehicleSearchRequest struct {
	OwnerID         *int64 `json:"owner_id" validate:"omitempty,gt=0"`
	OriginCityID    *int64 `json:"origin_city_id" validate:"omitempty,gt=0"`
	OriginCountryID *int64 `json:"origin_country_id" validate:"omitempty,gt=0"`
	CargoType       string `json:"cargo_type" validate:"omitempty,oneof=not_specified isuzu small_isuzu big_isuzu reefer reefer-mode tented labo"`
	Start           int    `json:"start" validate:"gte=0"`
}

type loadItem struct {
	ID                   int64     `json:"id"`
	Origin               string    `json:"origin"`
	Destination          string    `json:"destination"`
	OriginCityID         *int64    `json:"origin_city_id,omitempty"`
	DestinationCityID    *int64    `json:"destination_city_id,omitempty"`
	DestinationCountryID *int64    `json:"destination_country_id,omitempty"`
	CargoType            *string   `json:"cargo_type,omitempty"`
	Weight               *float64  `json:"weight,omitempty"`
	Price                *int64    `json:"price,omitempty"`
	Goods                *string   `json:"goods,omitempty"`
	Phone                *string   `json:"phone,omitempty"`
	Distance             *int64    `json:"distance,omitempty"`
	IsDagruz             bool      `json:"is_dagruz"`
	URL                  string    `json:"url"`
	Description          string    `json:"description"`
	PublishedAt          time.Time `json:"published_at"`
}

type vehicleItem struct {
	ID           int64     `json:"id"`
	Origin       string    `json:"origin"`
	OriginCityID *int64    `json:"origin_city_id,omitempty"`
	Destinations []string  `json:"destinations"`
	CargoType    *string   `json:"cargo_type,omitempty"`
	Weight       *float64  `json:"weight,omitempty"`
	Phone        *string   `json:"phone,omitempty"`
	URL          string    `json:"url"`
	Description  string    `json:"description"`
	PublishedAt  time.Time `json:"published_at"`
}

func (s *Server) handleLoadSearch(c echo.Context) error {
	var req loadSearchRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be a JSON object"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return failValidation(c, validationErrors(err))
	}

	ctx := c.Request().Context()
	f := query.LoadFilter{
		OwnerID:              req.OwnerID,
		OriginCityID:         req.OriginCityID,
		OriginCountryID:      req.OriginCountryID,
		DestinationCityID:    req.DestinationCityID,
		DestinationCountryID: req.DestinationCountryID,
		DestinationName:      req.DestinationName,
		CargoType:            req.CargoType,
		Dagruz:               req.Dagruz,
		Start:                req.Start,
	}
	if req.Lat != nil && req.Lng != nil {
		f.Location = &query.Location{Lat: *req.Lat, Lng: *req.Lng}
	}
	if req.UserID != nil {
		marked, err := s.store.MarkedAdIDs(ctx, *req.UserID, lifecycle.KindLoad)
		if err != nil {
			s.logger.Error().Err(err).Int64("user_id", *req.UserID).Msg("query marked ads failed")
			return internalError(c, "Failed to search loads")
		}
		f.MarkedExpired = marked
	}

	plan, err := s.builder.Loads(ctx, f)
	if err != nil {
		s.logger.Error().Err(err).Msg("build load search failed")
		return internalError(c, "Failed to search loads")
	}
	rows, total, err := s.store.SearchLoads(ctx, plan)
	if err != nil {
		s.logger.Error().Err(err).Msg("search loads failed")
		return internalError(c, "Failed to search loads")
	}

	items := make([]loadItem, 0, len(rows))
	for _, l := range rows {
		items = append(items, toLoadItem(l))
	}
	return success(c, map[string]any{
		"items": items,
		"total": total,
		"next":  next(req.Start, len(items), total),
	})
}

func (s *Server) handleVehicleSearch(c echo.Context) error {
	var req vehicleSearchRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be a JSON object"})
	}
	if err := s.validate.Struct(&req); err != nil {
		return failValidation(c, validationErrors(err))
	}

	plan := s.builder.Vehicles(query.VehicleFilter{
		OwnerID:         req.OwnerID,
		OriginCityID:    req.OriginCityID,
		OriginCountryID: req.OriginCountryID,
		CargoType:       req.CargoType,
		Start:           req.Start,
	})
	rows, total, err := s.store.SearchVehicles(c.Request().Context(), plan)
	if err != nil {
		s.logger.Error().Err(err).Msg("search vehicles failed")
		return internalError(c, "Failed to search vehicles")
	}

	items := make([]vehicleItem, 0, len(rows))
	for _, v := range rows {
		items = append(items, vehicleItem{
			ID:           v.ID,
			Origin:       v.Origin,
			OriginCityID: v.OriginCityID,
			Destinations: v.Destinations,
			CargoType:    v.CargoType,
			Weight:       v.Weight,
			Phone:        v.Phone,
			URL:          v.URL,
			Description:  v.Description,
			PublishedAt:  v.PublishedAt,
		})
	}
	return success(c, map[string]any{
		"items": items,
		"total": total,
		"next":  next(req.Start, len(items), total),
	})
}

// next is the start of the following page, or nil after the last one.
func next(start, got int, total int64) *int {
	n := start + got
	if got == 0 || int64(n) >= total {
		return nil
	}
	return &n
}

func toLoadItem(l db.Load) loadItem {
	return loadItem{
		ID:                   l.ID,
		Origin:               l.Origin,
		Destination:          l.Destination,
		OriginCityID:         l.OriginCityID,
		DestinationCityID:    l.DestinationCityID,
		DestinationCountryID: l.DestinationCountryID,
		CargoType:            l.CargoType,
		Weight:               l.Weight,
		Price:                l.Price,
		Goods:                l.Goods,
		Phone:                l.Phone,
		Distance:             l.Distance,
		IsDagruz:             l.IsDagruz,
		URL:                  l.URL,
		Description:          l.Description,
		PublishedAt:          l.PublishedAt,
	}
}
